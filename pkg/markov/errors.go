// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package markov

import "errors"

// Sentinel errors for the chain engine.
var (
	// ErrInvalidDepth indicates a Brain was requested with depth < 1.
	ErrInvalidDepth = errors.New("depth must be at least 1")

	// ErrEmptyText indicates training input contained no words.
	ErrEmptyText = errors.New("training text contains no words")

	// ErrUntrained indicates generation was attempted on a Brain with no start words.
	ErrUntrained = errors.New("brain has not been trained")

	// ErrTimeout indicates generation ran out of time before reaching the minimum length.
	ErrTimeout = errors.New("generation deadline exceeded")

	// ErrInvalidBounds indicates min/max generation bounds are unusable.
	ErrInvalidBounds = errors.New("invalid generation bounds")

	// ErrCorrupt indicates serialized brain data could not be decoded or
	// violates a chain invariant.
	ErrCorrupt = errors.New("corrupt brain data")
)
