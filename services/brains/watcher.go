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
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/museun/stirred/services/brains/storage"
)

// Loader registers a stored brain by name. Service implements it.
type Loader interface {
	Load(ctx context.Context, name string) (bool, error)
}

// Watcher hot-loads brain files that appear in a directory, such as those
// written by the offline trainer while the server is running.
//
// A file is loaded once no event has been seen for it during the settle
// delay, so partially written files are not picked up. Names that are
// already registered are ignored.
type Watcher struct {
	dir    string
	loader Loader
	settle time.Duration
	logger *slog.Logger
	fsw    *fsnotify.Watcher
}

// NewWatcher watches dir. Run must be called to process events.
func NewWatcher(dir string, loader Loader, settle time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	return &Watcher{
		dir:    dir,
		loader: loader,
		settle: settle,
		logger: logger.With(slog.String("component", "brain_watcher"), slog.String("dir", dir)),
		fsw:    fsw,
	}, nil
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	pending := make(map[string]*time.Timer)
	ready := make(chan string)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			name, ok := storage.NameFromPath(event.Name)
			if !ok {
				continue
			}
			if t, ok := pending[name]; ok {
				t.Reset(w.settle)
				continue
			}
			pending[name] = time.AfterFunc(w.settle, func() {
				select {
				case ready <- name:
				case <-ctx.Done():
				}
			})

		case name := <-ready:
			delete(pending, name)
			loaded, err := w.loader.Load(ctx, name)
			if err != nil {
				w.logger.Warn("hot load failed", slog.String("brain", name), slog.String("error", err.Error()))
				continue
			}
			if loaded {
				w.logger.Info("hot loaded brain", slog.String("brain", name))
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}
