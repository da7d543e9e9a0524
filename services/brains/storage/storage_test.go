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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/museun/stirred/pkg/markov"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainedBrain(t *testing.T, name string) *markov.Brain {
	t.Helper()
	b, err := markov.NewBrain(name, 3)
	require.NoError(t, err)
	require.NoError(t, b.Train("the cat sat on the mat"))
	require.NoError(t, b.Train("a dog sat on the log"))
	return b
}

func TestEncodeDecode(t *testing.T) {
	b := trainedBrain(t, "test")

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, b))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestDecode_Corrupt(t *testing.T) {
	t.Run("not zstd", func(t *testing.T) {
		_, err := Decode(bytes.NewReader([]byte("definitely not a brain")))
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("truncated", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, trainedBrain(t, "test")))
		data := buf.Bytes()[:buf.Len()/2]

		_, err := Decode(bytes.NewReader(data))
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestNameFromPath(t *testing.T) {
	tests := []struct {
		path string
		name string
		ok   bool
	}{
		{"data/foo.sdb", "foo", true},
		{"foo.sdb", "foo", true},
		{"foo.txt", "", false},
		{".sdb", "", false},
		{".foo.sdb.123.tmp", "", false},
	}
	for _, tt := range tests {
		name, ok := NameFromPath(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.name, name, tt.path)
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	t.Run("missing", func(t *testing.T) {
		_, err := s.Load(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotExist)
	})

	t.Run("save and load", func(t *testing.T) {
		b := trainedBrain(t, "alpha")
		require.NoError(t, s.Save(ctx, b))
		assert.FileExists(t, filepath.Join(dir, "alpha.sdb"))

		got, err := s.Load(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, b, got)
	})

	t.Run("overwrite", func(t *testing.T) {
		b := trainedBrain(t, "alpha")
		require.NoError(t, b.Train("something entirely new"))
		require.NoError(t, s.Save(ctx, b))

		got, err := s.Load(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, b.Stats(), got.Stats())
	})

	t.Run("list", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, trainedBrain(t, "beta")))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))

		names, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "beta"}, names)
	})

	t.Run("corrupt file", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.sdb"), []byte("garbage"), 0600))
		_, err := s.Load(ctx, "broken")
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("invalid name", func(t *testing.T) {
		_, err := s.Load(ctx, "../escape")
		assert.ErrorIs(t, err, ErrInvalidName)
	})
}

func TestBadgerStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewBadgerStore(InMemoryBadgerConfig())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(ctx, "alpha")
	assert.ErrorIs(t, err, ErrNotExist)

	a := trainedBrain(t, "alpha")
	require.NoError(t, s.Save(ctx, a))
	require.NoError(t, s.Save(ctx, trainedBrain(t, "beta")))

	got, err := s.Load(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, a, got)

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)
}

func TestBadgerStore_RequiresPath(t *testing.T) {
	_, err := NewBadgerStore(BadgerConfig{})
	assert.Error(t, err)
}

func TestBadgerStore_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewBadgerStore(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	b := trainedBrain(t, "alpha")
	require.NoError(t, s.Save(ctx, b))
	require.NoError(t, s.Close())

	s, err = NewBadgerStore(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewSQLiteStore(ctx, ":memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(ctx, "alpha")
	assert.ErrorIs(t, err, ErrNotExist)

	a := trainedBrain(t, "alpha")
	require.NoError(t, s.Save(ctx, trainedBrain(t, "beta")))
	require.NoError(t, s.Save(ctx, a))

	got, err := s.Load(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, a, got)

	require.NoError(t, a.Train("fresh words only here"))
	require.NoError(t, s.Save(ctx, a))
	got, err = s.Load(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, a.ContextCount(), got.ContextCount())

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)

	_, err = s.Load(ctx, "../escape")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestSQLiteStore_Persistent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "brains.db")

	s, err := NewSQLiteStore(ctx, path, nil)
	require.NoError(t, err)
	b := trainedBrain(t, "alpha")
	require.NoError(t, s.Save(ctx, b))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestSQLiteStore_RequiresPath(t *testing.T) {
	_, err := NewSQLiteStore(context.Background(), "", nil)
	assert.Error(t, err)
}
