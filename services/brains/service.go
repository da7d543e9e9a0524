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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/museun/stirred/pkg/markov"
	"github.com/museun/stirred/pkg/telemetry"
	"github.com/museun/stirred/services/brains/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ServiceConfig configures the brain service.
type ServiceConfig struct {
	// Worker is applied to every spawned brain worker.
	Worker WorkerConfig

	// DefaultDepth is the depth of fresh brains created on load fallback
	// or without an explicit depth.
	DefaultDepth int

	// LoadConcurrency bounds concurrent loads in LoadAll.
	LoadConcurrency int
}

// DefaultServiceConfig returns the default configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Worker:          DefaultWorkerConfig(),
		DefaultDepth:    DefaultDepth,
		LoadConcurrency: 4,
	}
}

// Service routes requests to brain workers by name and owns their lifecycle.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	store    storage.Store
	registry *Registry
	cfg      ServiceConfig
	logger   *slog.Logger
	creates  singleflight.Group
}

// NewService creates a service backed by store. Call LoadAll to start
// workers for persisted brains, and Shutdown to stop them.
func NewService(store storage.Store, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultDepth <= 0 {
		cfg.DefaultDepth = DefaultDepth
	}
	if cfg.LoadConcurrency <= 0 {
		cfg.LoadConcurrency = 1
	}
	cfg.Worker.Logger = logger
	return &Service{
		store:    store,
		registry: NewRegistry(),
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "brain_service")),
	}
}

// Registry returns the service's registry.
func (s *Service) Registry() *Registry { return s.registry }

// LoadAll starts a worker for every brain in the store.
//
// Description:
//
//	Loads brains concurrently. Missing or undecodable data is logged and
//	replaced with a fresh brain of the default depth under the same name;
//	such failures are never returned. Names already registered are skipped.
//
// Outputs:
//
//	int - Number of brains registered by this call.
//	error - Non-nil only if listing the store fails or ctx is cancelled.
func (s *Service) LoadAll(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "brains.Service.LoadAll")
	defer span.End()

	names, err := s.store.List(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, fmt.Errorf("list stored brains: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.LoadConcurrency)

	loaded := make([]bool, len(names))
	for i, name := range names {
		g.Go(func() error {
			ok, err := s.Load(gctx, name)
			loaded[i] = ok
			return err
		})
	}
	err = g.Wait()

	n := 0
	for _, ok := range loaded {
		if ok {
			n++
		}
	}
	span.SetAttributes(attribute.Int("brains.loaded", n))
	s.logger.Info("brains loaded", slog.Int("count", n), slog.Int("stored", len(names)))
	return n, err
}

// Load starts a worker for the stored brain name unless it is registered.
//
// Description:
//
//	Missing or corrupt data falls back to a fresh brain of the default
//	depth. Names that fail validation are skipped with a warning. The
//	returned bool reports whether a new worker was registered.
//
// Errors:
//
//	Only ctx.Err().
func (s *Service) Load(ctx context.Context, name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		s.logger.Warn("skipping stored brain with invalid name", slog.String("brain", name))
		return false, nil
	}
	if _, ok := s.registry.Lookup(name); ok {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	start := time.Now()
	b, err := s.store.Load(ctx, name)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		level := slog.LevelWarn
		if errors.Is(err, storage.ErrNotExist) {
			level = slog.LevelInfo
		}
		s.logger.Log(ctx, level, "starting fresh brain",
			slog.String("brain", name),
			slog.Int("depth", s.cfg.DefaultDepth),
			slog.String("reason", err.Error()),
		)
		b, err = markov.NewBrain(name, s.cfg.DefaultDepth)
		if err != nil {
			return false, err
		}
	}

	h := Spawn(b, s.store, s.cfg.Worker)
	if err := s.registry.Insert(name, h); err != nil {
		// Lost a race with another loader; the winner owns the name.
		_ = h.discard(context.Background())
		return false, nil
	}

	s.logger.Debug("brain loaded",
		slog.String("brain", name),
		slog.Int("depth", b.Depth()),
		slog.Duration("took", time.Since(start)),
	)
	return true, nil
}

// Create registers a new, empty brain and persists it immediately.
//
// Description:
//
//	Validates name and depth, spawns a worker and sends ForceSave so the
//	brain is durable without waiting for the save interval. Concurrent
//	creates of the same name share one result. A failed save leaves the
//	brain registered and serving.
//
// Errors:
//
//	ErrValidation, ErrExists, ErrPersistence.
func (s *Service) Create(ctx context.Context, name string, depth int) error {
	if err := validateCreate(name, depth); err != nil {
		return err
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "brains.Service.Create",
		trace.WithAttributes(attribute.String("brain", name), attribute.Int("depth", depth)),
	)
	defer span.End()

	_, err, _ := s.creates.Do(name, func() (any, error) {
		if _, ok := s.registry.Lookup(name); ok {
			return nil, fmt.Errorf("%w: %s", ErrExists, name)
		}
		b, err := markov.NewBrain(name, depth)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		h := Spawn(b, s.store, s.cfg.Worker)
		if err := s.registry.Insert(name, h); err != nil {
			_ = h.discard(context.Background())
			return nil, err
		}
		s.logger.Info("brain created", slog.String("brain", name), slog.Int("depth", depth))

		_, err = h.Send(context.WithoutCancel(ctx), ForceSave{})
		return nil, err
	})
	telemetry.RecordError(span, err)
	return err
}

func (s *Service) handle(name string) (*Handle, error) {
	h, ok := s.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return h, nil
}

// Train feeds data to the named brain, then requests an interval save.
//
// Errors:
//
//	ErrNotFound, ErrValidation (no words), ErrPersistence.
func (s *Service) Train(ctx context.Context, name, data string) error {
	h, err := s.handle(name)
	if err != nil {
		return err
	}
	if _, err := h.Send(ctx, Train{Data: data}); err != nil {
		return err
	}
	_, err = h.Send(ctx, Save{})
	return err
}

// Generate produces a sentence from the named brain.
//
// Errors:
//
//	ErrNotFound, ErrValidation (bounds), ErrGenerationEmpty.
func (s *Service) Generate(ctx context.Context, name string, req Generate) (string, error) {
	h, err := s.handle(name)
	if err != nil {
		return "", err
	}
	if err := validateGenerate(req); err != nil {
		return "", err
	}
	resp, err := h.Send(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Data, nil
}

// Save persists the named brain. Without force, the save only happens if
// the save interval has elapsed.
func (s *Service) Save(ctx context.Context, name string, force bool) error {
	h, err := s.handle(name)
	if err != nil {
		return err
	}
	var req Request = Save{}
	if force {
		req = ForceSave{}
	}
	_, err = h.Send(ctx, req)
	return err
}

// Info returns statistics for the named brain.
func (s *Service) Info(ctx context.Context, name string) (Info, error) {
	h, err := s.handle(name)
	if err != nil {
		return Info{}, err
	}
	resp, err := h.Send(ctx, InfoRequest{})
	if err != nil {
		return Info{}, err
	}
	return *resp.Info, nil
}

// List returns registered brain names, sorted.
func (s *Service) List() []string {
	return s.registry.Names()
}

// Shutdown stops every worker, each with a final save, and closes the store.
// Save failures are joined into the returned error.
func (s *Service) Shutdown(ctx context.Context) error {
	names := s.registry.Names()
	errs := make([]error, len(names))

	var g errgroup.Group
	for i, name := range names {
		h, ok := s.registry.Remove(name)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := h.Stop(ctx); err != nil {
				errs[i] = fmt.Errorf("stop %s: %w", name, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	s.logger.Info("brain service stopped", slog.Int("brains", len(names)))
	return errors.Join(errs...)
}
