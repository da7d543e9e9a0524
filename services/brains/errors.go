// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package brains

import "errors"

var (
	// ErrNotFound indicates no brain is registered under the requested name.
	ErrNotFound = errors.New("brain not found")

	// ErrExists indicates a brain with the requested name is already registered.
	ErrExists = errors.New("brain already exists")

	// ErrValidation indicates a malformed request (bounds, name, depth, empty text).
	ErrValidation = errors.New("validation failed")

	// ErrGenerationEmpty indicates generation produced nothing because the
	// brain is untrained or the deadline passed.
	ErrGenerationEmpty = errors.New("generation produced no output")

	// ErrPersistence indicates a save failed. The worker keeps serving.
	ErrPersistence = errors.New("persistence failure")

	// ErrStopped indicates the brain's worker has shut down.
	ErrStopped = errors.New("brain worker stopped")
)
