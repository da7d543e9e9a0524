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
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/museun/stirred/pkg/markov"
	"github.com/museun/stirred/services/brains/storage"
	"github.com/stretchr/testify/require"
)

var errDiskFull = errors.New("disk full")

// memStore is an in-memory storage.Store that counts writes.
type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	saves  map[string]int
	failOn map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		data:   make(map[string][]byte),
		saves:  make(map[string]int),
		failOn: make(map[string]bool),
	}
}

func (s *memStore) Load(_ context.Context, name string) (*markov.Brain, error) {
	s.mu.Lock()
	data, ok := s.data[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotExist, name)
	}
	return storage.Decode(bytes.NewReader(data))
}

func (s *memStore) Save(_ context.Context, b *markov.Brain) error {
	s.mu.Lock()
	fail := s.failOn[b.Name()]
	s.mu.Unlock()
	if fail {
		return errDiskFull
	}

	var buf bytes.Buffer
	if err := storage.Encode(&buf, b); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[b.Name()] = buf.Bytes()
	s.saves[b.Name()]++
	return nil
}

func (s *memStore) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) saveCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves[name]
}

func (s *memStore) setFail(name string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[name] = fail
}

func (s *memStore) put(t *testing.T, b *markov.Brain) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, storage.Encode(&buf, b))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[b.Name()] = buf.Bytes()
}

func (s *memStore) putRaw(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = data
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testWorkerConfig(clock *fakeClock) WorkerConfig {
	cfg := DefaultWorkerConfig()
	cfg.Source = rand.NewPCG(1, 2)
	cfg.Clock = clock.Now
	return cfg
}

func newBrain(t *testing.T, name string, depth int) *markov.Brain {
	t.Helper()
	b, err := markov.NewBrain(name, depth)
	require.NoError(t, err)
	return b
}

func stopHandle(t *testing.T, h *Handle) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = h.Stop(ctx)
}
