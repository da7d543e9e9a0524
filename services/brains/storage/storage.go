// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage persists Brains.
//
// A Brain is serialized with markov's compact binary encoding and the
// stream is zstd-compressed before it is written. Four backends share the
// Store interface:
//
//	FileStore   one <name>.sdb file per brain in a directory (default)
//	BadgerStore one key per brain in an embedded BadgerDB
//	SQLiteStore one row per brain in a SQLite database
//	GCSStore    one object per brain in a Google Cloud Storage bucket
//
// Missing data is reported as ErrNotExist and undecodable data as
// ErrCorrupt; callers treat both as "no existing brain".
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/museun/stirred/pkg/markov"
)

// Extension is the file and object suffix of a serialized brain.
const Extension = ".sdb"

// maxDecodedSize caps decompression memory for a single brain.
const maxDecodedSize = 1 << 31

var (
	// ErrNotExist indicates no persisted brain exists under the name.
	ErrNotExist = errors.New("brain not found in storage")

	// ErrCorrupt indicates persisted data could not be decoded.
	ErrCorrupt = markov.ErrCorrupt

	// ErrInvalidName indicates a name that cannot be mapped to a storage key.
	ErrInvalidName = errors.New("invalid brain name")
)

// Store loads and saves brains by name.
//
// Implementations must be safe for concurrent use by multiple brain
// workers; each worker only ever saves its own brain.
type Store interface {
	// Load returns the brain persisted under name.
	// Returns ErrNotExist or an error wrapping ErrCorrupt.
	Load(ctx context.Context, name string) (*markov.Brain, error)

	// Save persists b under b.Name(), replacing any previous version.
	Save(ctx context.Context, b *markov.Brain) error

	// List returns the names of all persisted brains, sorted.
	List(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// Encode writes the zstd-compressed binary form of b to w.
func Encode(w io.Writer, b *markov.Brain) error {
	data, err := b.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal brain: %w", err)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return fmt.Errorf("compress brain: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush zstd encoder: %w", err)
	}
	return nil
}

// Decode reads a brain written by Encode. Any decompression or decoding
// failure is reported as an error wrapping ErrCorrupt.
func Decode(r io.Reader) (*markov.Brain, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", ErrCorrupt, err)
	}

	b := new(markov.Brain)
	if err := b.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return b, nil
}

// NameFromPath returns the brain name of a path ending in Extension.
func NameFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, Extension) {
		return "", false
	}
	name := strings.TrimSuffix(base, Extension)
	if checkName(name) != nil {
		return "", false
	}
	return name, true
}

// checkName rejects names that would escape a directory or key prefix.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
