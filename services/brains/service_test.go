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

func newTestService(t *testing.T, store storage.Store) (*Service, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	cfg := DefaultServiceConfig()
	cfg.Worker = testWorkerConfig(clock)
	svc := NewService(store, cfg, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, clock
}

func TestService_LoadAll(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	trained := newBrain(t, "trained", 3)
	require.NoError(t, trained.Train("hello there world"))
	store.put(t, trained)
	store.putRaw("corrupt", []byte("not a brain"))
	store.putRaw("bad name!", []byte("ignored"))

	svc, _ := newTestService(t, store)

	n, err := svc.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"corrupt", "trained"}, svc.List())

	info, err := svc.Info(ctx, "trained")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Depth)
	assert.Equal(t, 1, info.Head)

	// Corrupt data falls back to a fresh brain of the default depth.
	info, err = svc.Info(ctx, "corrupt")
	require.NoError(t, err)
	assert.Equal(t, DefaultDepth, info.Depth)
	assert.Equal(t, 0, info.Head)

	// A second pass registers nothing new.
	n, err = svc.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestService_LoadMissing(t *testing.T) {
	svc, _ := newTestService(t, newMemStore())

	loaded, err := svc.Load(context.Background(), "fresh")
	require.NoError(t, err)
	assert.True(t, loaded)

	info, err := svc.Info(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, DefaultDepth, info.Depth)
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, _ := newTestService(t, store)

	require.NoError(t, svc.Create(ctx, "newbie", 2))
	assert.Equal(t, 1, store.saveCount("newbie"), "create saves immediately")

	err := svc.Create(ctx, "newbie", 2)
	assert.ErrorIs(t, err, ErrExists)

	err = svc.Create(ctx, "../etc", 2)
	assert.ErrorIs(t, err, ErrValidation)

	err = svc.Create(ctx, "deep", MaxDepth+1)
	assert.ErrorIs(t, err, ErrValidation)

	err = svc.Create(ctx, "shallow", 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestService_CreateConcurrent(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.Create(context.Background(), "racy", 3)
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrExists)
	}
	assert.GreaterOrEqual(t, succeeded, 1)
	assert.Equal(t, []string{"racy"}, svc.List())
	assert.Equal(t, 1, store.saveCount("racy"))
}

func TestService_CreateSaveFailure(t *testing.T) {
	store := newMemStore()
	store.setFail("unlucky", true)
	svc, _ := newTestService(t, store)

	err := svc.Create(context.Background(), "unlucky", 2)
	assert.ErrorIs(t, err, ErrPersistence)

	// Still registered and serving.
	require.NoError(t, svc.Train(context.Background(), "unlucky", "it still works"))
}

func TestService_TrainGenerate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newMemStore())
	require.NoError(t, svc.Create(ctx, "abc", 3))

	_, err := svc.Generate(ctx, "abc", Generate{Min: 3, Max: 3})
	assert.ErrorIs(t, err, ErrGenerationEmpty)

	require.NoError(t, svc.Train(ctx, "abc", "a b c"))

	out, err := svc.Generate(ctx, "abc", Generate{Min: 3, Max: 3})
	if err != nil {
		assert.ErrorIs(t, err, ErrGenerationEmpty)
	} else {
		assert.Equal(t, "a b c", out)
	}
}

func TestService_TrainSavesAfterInterval(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, clock := newTestService(t, store)
	require.NoError(t, svc.Create(ctx, "periodic", 2))
	require.Equal(t, 1, store.saveCount("periodic"))

	require.NoError(t, svc.Train(ctx, "periodic", "one two"))
	assert.Equal(t, 1, store.saveCount("periodic"))

	clock.Advance(5*time.Minute + time.Second)
	require.NoError(t, svc.Train(ctx, "periodic", "three four"))
	assert.Equal(t, 2, store.saveCount("periodic"))
}

func TestService_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newMemStore())

	assert.ErrorIs(t, svc.Train(ctx, "ghost", "boo"), ErrNotFound)
	_, err := svc.Generate(ctx, "ghost", Generate{Min: 1, Max: 2})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Save(ctx, "ghost", true), ErrNotFound)
	_, err = svc.Info(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_GenerateValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newMemStore())
	require.NoError(t, svc.Create(ctx, "v", 2))

	tests := []Generate{
		{Min: 0, Max: 5},
		{Min: 6, Max: 5},
		{Min: 1, Max: MaxWords + 1},
	}
	for _, req := range tests {
		_, err := svc.Generate(ctx, "v", req)
		assert.ErrorIs(t, err, ErrValidation, "%+v", req)
	}
}

func TestService_Save(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, _ := newTestService(t, store)
	require.NoError(t, svc.Create(ctx, "s", 2))

	require.NoError(t, svc.Save(ctx, "s", false))
	assert.Equal(t, 1, store.saveCount("s"))

	require.NoError(t, svc.Save(ctx, "s", true))
	assert.Equal(t, 2, store.saveCount("s"))
}

func TestService_Shutdown(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, ServiceConfig{Worker: testWorkerConfig(newFakeClock())}, nil)

	require.NoError(t, svc.Create(ctx, "a", 2))
	require.NoError(t, svc.Create(ctx, "b", 2))
	require.NoError(t, svc.Train(ctx, "a", "persist this"))

	require.NoError(t, svc.Shutdown(ctx))
	assert.Empty(t, svc.List())
	// "a" changed after its create save; "b" did not.
	assert.Equal(t, 2, store.saveCount("a"))
	assert.Equal(t, 1, store.saveCount("b"))

	got, err := store.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"persist"}, got.Head())
}

func TestService_ShutdownKeepsUnreadableData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "precious"+storage.Extension)
	garbage := []byte("these bytes are not a brain but someone wants them")
	require.NoError(t, os.WriteFile(path, garbage, 0600))

	store, err := storage.NewFileStore(dir, nil)
	require.NoError(t, err)
	svc := NewService(store, ServiceConfig{Worker: testWorkerConfig(newFakeClock())}, nil)

	n, err := svc.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	info, err := svc.Info(ctx, "precious")
	require.NoError(t, err)
	assert.Equal(t, 0, info.Head)

	require.NoError(t, svc.Shutdown(ctx))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, garbage, got)
}

func TestService_ShutdownSavesTrainedFallback(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.putRaw("reborn", []byte("not a brain"))
	svc := NewService(store, ServiceConfig{Worker: testWorkerConfig(newFakeClock())}, nil)

	_, err := svc.LoadAll(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Train(ctx, "reborn", "new life"))
	require.NoError(t, svc.Shutdown(ctx))

	got, err := store.Load(ctx, "reborn")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, got.Head())
}

func TestValidateName(t *testing.T) {
	valid := []string{"a", "brain_1", "my-brain", "ABC123"}
	for _, name := range valid {
		assert.NoError(t, ValidateName(name), name)
	}

	invalid := []string{"", "has space", "../up", "dot.name", string(make([]byte, 65))}
	for _, name := range invalid {
		assert.ErrorIs(t, ValidateName(name), ErrValidation, name)
	}
}
