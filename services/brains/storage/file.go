// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/museun/stirred/pkg/markov"
)

// FileStore keeps one <name>.sdb file per brain in a directory.
//
// Thread Safety: Safe for concurrent use. Writes go to a temporary file in
// the same directory and are renamed into place, so readers never observe a
// partially written brain.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates the directory if needed and returns a store rooted there.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("storage directory must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	return &FileStore{
		dir:    dir,
		logger: logger.With(slog.String("component", "file_store")),
	}, nil
}

// Dir returns the root directory.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the file path used for name.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.dir, name+Extension)
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, name string) (*markov.Brain, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	f, err := os.Open(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	return Decode(f)
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, b *markov.Brain) error {
	if err := checkName(b.Name()); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+b.Name()+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if err := Encode(tmp, b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.Path(b.Name())); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}

	s.logger.Debug("brain saved", slog.String("brain", b.Name()), slog.String("path", s.Path(b.Name())))
	return nil
}

// List implements Store.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", s.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := NameFromPath(e.Name()); ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }
