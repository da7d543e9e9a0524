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
	"fmt"
	"slices"
	"sync"
)

// Registry maps brain names to worker handles.
//
// Thread Safety: Safe for concurrent use. The lock is held only across map
// access, never while a request is in flight.
type Registry struct {
	mu     sync.RWMutex
	brains map[string]*Handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{brains: make(map[string]*Handle)}
}

// Lookup returns the handle registered under name.
func (r *Registry) Lookup(name string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.brains[name]
	return h, ok
}

// Insert registers h under name. It returns ErrExists if the name is taken.
func (r *Registry) Insert(name string, h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.brains[name]; ok {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}
	r.brains[name] = h
	brainsLoaded.Set(float64(len(r.brains)))
	return nil
}

// Remove unregisters name and returns its handle, if any.
func (r *Registry) Remove(name string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.brains[name]
	if ok {
		delete(r.brains, name)
		brainsLoaded.Set(float64(len(r.brains)))
	}
	return h, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.brains))
	for name := range r.brains {
		names = append(names, name)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

// Len returns the number of registered brains.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.brains)
}
