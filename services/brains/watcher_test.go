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

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/museun/stirred/services/brains/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLoader struct {
	mu    sync.Mutex
	names []string
}

func (l *recordingLoader) Load(_ context.Context, name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
	return true, nil
}

func (l *recordingLoader) loaded() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func TestWatcher_LoadsNewFiles(t *testing.T) {
	dir := t.TempDir()
	loader := &recordingLoader{}

	w, err := NewWatcher(dir, loader, 20*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	fs, err := storage.NewFileStore(dir, nil)
	require.NoError(t, err)
	b := newBrain(t, "hot", 2)
	require.NoError(t, b.Train("fresh off the trainer"))
	require.NoError(t, fs.Save(ctx, b))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0600))

	assert.Eventually(t, func() bool {
		return len(loader.loaded()) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "hot", loader.loaded()[0])
	for _, name := range loader.loaded() {
		assert.Equal(t, "hot", name)
	}

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_WithService(t *testing.T) {
	dir := t.TempDir()
	fs, err := storage.NewFileStore(dir, nil)
	require.NoError(t, err)
	svc, _ := newTestService(t, fs)

	w, err := NewWatcher(dir, svc, 20*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	// Simulate the offline trainer writing a file while the server runs.
	other, err := storage.NewFileStore(dir, nil)
	require.NoError(t, err)
	b := newBrain(t, "late", 3)
	require.NoError(t, b.Train("late arrivals are welcome"))
	require.NoError(t, other.Save(ctx, b))

	require.Eventually(t, func() bool {
		_, ok := svc.Registry().Lookup("late")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	info, err := svc.Info(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Depth)
	assert.Equal(t, 1, info.Head)
}

func TestNewWatcher_MissingDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "nope"), &recordingLoader{}, time.Millisecond, nil)
	assert.Error(t, err)
}
