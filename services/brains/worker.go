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
	"math/rand/v2"
	"sync"
	"time"

	"github.com/museun/stirred/pkg/markov"
	"github.com/museun/stirred/pkg/telemetry"
	"github.com/museun/stirred/services/brains/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "stirred.brains"

// WorkerConfig configures a brain worker.
type WorkerConfig struct {
	// MailboxSize bounds queued requests. Senders block when it is full.
	MailboxSize int

	// SaveInterval is the minimum time between interval saves.
	SaveInterval time.Duration

	// GenerateTimeout bounds each Generate request.
	GenerateTimeout time.Duration

	// Source seeds the worker's random generator. Nil picks a random seed.
	Source rand.Source

	// Clock returns the current time. Nil means time.Now.
	Clock func() time.Time

	Logger *slog.Logger
}

// DefaultWorkerConfig returns a mailbox of 16, a 5 minute save interval
// and a 5 second generation timeout.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		MailboxSize:     16,
		SaveInterval:    5 * time.Minute,
		GenerateTimeout: 5 * time.Second,
	}
}

type envelope struct {
	ctx   context.Context
	req   Request
	reply chan Response
}

// Handle is the address of a running brain worker. Any number of
// goroutines may Send to one Handle; the worker handles requests one at a
// time in arrival order.
type Handle struct {
	name    string
	mailbox chan envelope
	quit    chan struct{}
	done    chan struct{}

	stopOnce  sync.Once
	finalSave bool
	stopErr   error
}

// worker owns a brain. Only the worker goroutine touches brain, rng,
// lastSave and dirty.
type worker struct {
	handle   *Handle
	brain    *markov.Brain
	store    storage.Store
	cfg      WorkerConfig
	rng      *rand.Rand
	clock    func() time.Time
	lastSave time.Time
	logger   *slog.Logger

	// dirty is set when the brain may differ from what the store holds:
	// after a successful Train or a failed save. A successful save clears it.
	dirty bool
}

// Spawn starts a worker goroutine that owns b and persists it to store.
// The worker runs until Stop is called.
func Spawn(b *markov.Brain, store storage.Store, cfg WorkerConfig) *Handle {
	defaults := DefaultWorkerConfig()
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = defaults.MailboxSize
	}
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = defaults.SaveInterval
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = defaults.GenerateTimeout
	}
	src := cfg.Source
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handle{
		name:    b.Name(),
		mailbox: make(chan envelope, cfg.MailboxSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	w := &worker{
		handle:   h,
		brain:    b,
		store:    store,
		cfg:      cfg,
		rng:      rand.New(src),
		clock:    clock,
		lastSave: clock(),
		logger:   logger.With(slog.String("brain", b.Name())),
	}
	go w.run()
	return h
}

// Name returns the brain's name.
func (h *Handle) Name() string { return h.name }

// Send delivers req and waits for its reply.
//
// Description:
//
//	Blocks while the mailbox is full, then until the worker replies.
//	Cancelling ctx abandons the wait; a request already delivered is still
//	handled to completion.
//
// Outputs:
//
//	Response - The worker's reply.
//	error - resp.Err, ctx.Err(), or ErrStopped if the worker has shut down.
func (h *Handle) Send(ctx context.Context, req Request) (Response, error) {
	env := envelope{ctx: ctx, req: req, reply: make(chan Response, 1)}

	select {
	case <-h.quit:
		return Response{}, ErrStopped
	default:
	}

	select {
	case h.mailbox <- env:
	case <-h.quit:
		return Response{}, ErrStopped
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case resp := <-env.reply:
		return resp, resp.Err
	case <-h.done:
		select {
		case resp := <-env.reply:
			return resp, resp.Err
		default:
			return Response{}, ErrStopped
		}
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Stop shuts the worker down.
//
// Description:
//
//	The worker finishes the request in progress, answers every queued
//	request with ErrStopped and force saves the brain if it changed since
//	its last successful save. A brain that was never trained or saved is
//	left alone, so stored data that failed to load is not overwritten.
//	Stop waits for all of that, or for ctx. Calling Stop again returns the
//	first result.
//
// Outputs:
//
//	error - The final save error wrapped in ErrPersistence, or ctx.Err().
func (h *Handle) Stop(ctx context.Context) error {
	return h.stop(ctx, true)
}

// discard stops the worker without the final save.
func (h *Handle) discard(ctx context.Context) error {
	return h.stop(ctx, false)
}

func (h *Handle) stop(ctx context.Context, save bool) error {
	h.stopOnce.Do(func() {
		h.finalSave = save
		close(h.quit)
	})
	select {
	case <-h.done:
		return h.stopErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *worker) run() {
	h := w.handle
	defer close(h.done)
	defer mailboxDepth.DeleteLabelValues(h.name)

	for {
		select {
		case <-h.quit:
			w.shutdown()
			return
		default:
		}

		select {
		case env := <-h.mailbox:
			mailboxDepth.WithLabelValues(h.name).Set(float64(len(h.mailbox)))
			env.reply <- w.dispatch(env)
		case <-h.quit:
			w.shutdown()
			return
		}
	}
}

func (w *worker) shutdown() {
	h := w.handle
drain:
	for {
		select {
		case env := <-h.mailbox:
			env.reply <- Response{Err: ErrStopped}
		default:
			break drain
		}
	}

	if !h.finalSave || !w.dirty {
		w.logger.Debug("worker stopped without final save", slog.Bool("dirty", w.dirty))
		return
	}
	if err := w.save(context.Background(), "final", true); err != nil {
		h.stopErr = err
		w.logger.Error("final save failed", slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("worker stopped")
}

// dispatch handles one request. It always returns exactly one response.
func (w *worker) dispatch(env envelope) (resp Response) {
	// The caller may abandon its wait; the work itself is not cancelled.
	ctx := context.WithoutCancel(env.ctx)
	ctx, span := telemetry.StartSpan(ctx, tracerName, "brains.Worker."+env.req.kind(),
		trace.WithAttributes(attribute.String("brain", w.handle.name)),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("request panicked", slog.String("request", env.req.kind()), slog.Any("panic", r))
			resp = Response{Err: fmt.Errorf("%s: internal error: %v", env.req.kind(), r)}
		}
		telemetry.RecordError(span, resp.Err)
		recordMessage(ctx, env.req.kind(), time.Since(start), resp.Err)
	}()

	switch req := env.req.(type) {
	case Train:
		return w.train(req)
	case Generate:
		return w.generate(ctx, req)
	case Save:
		return Response{Err: w.save(ctx, "interval", false)}
	case ForceSave:
		return Response{Err: w.save(ctx, "force", true)}
	case InfoRequest:
		return Response{Info: &Info{
			Stats:    w.brain.Stats(),
			LastSave: w.lastSave,
			Mailbox:  len(w.handle.mailbox),
		}}
	default:
		return Response{Err: fmt.Errorf("%w: unknown request %T", ErrValidation, env.req)}
	}
}

func (w *worker) train(req Train) Response {
	err := w.brain.Train(req.Data)
	trainTotal.WithLabelValues(statusLabel(err)).Inc()
	if err == nil {
		w.dirty = true
	}
	if errors.Is(err, markov.ErrEmptyText) {
		return Response{Err: fmt.Errorf("%w: %w", ErrValidation, err)}
	}
	return Response{Err: err}
}

func (w *worker) generate(ctx context.Context, req Generate) Response {
	start := time.Now()
	data, err := w.brain.Generate(ctx, w.rng, markov.GenerateOptions{
		Min:     req.Min,
		Max:     req.Max,
		Query:   req.Query,
		Timeout: w.cfg.GenerateTimeout,
	})
	generateDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		generateTotal.WithLabelValues("ok").Inc()
		return Response{Data: data}
	case errors.Is(err, markov.ErrInvalidBounds):
		generateTotal.WithLabelValues("invalid").Inc()
		return Response{Err: fmt.Errorf("%w: %w", ErrValidation, err)}
	case errors.Is(err, markov.ErrUntrained), errors.Is(err, markov.ErrTimeout):
		generateTotal.WithLabelValues("empty").Inc()
		return Response{Err: fmt.Errorf("%w: %w", ErrGenerationEmpty, err)}
	default:
		generateTotal.WithLabelValues("error").Inc()
		return Response{Err: err}
	}
}

// save persists the brain when forced or when the save interval has
// elapsed since the last successful save.
func (w *worker) save(ctx context.Context, kind string, force bool) error {
	now := w.clock()
	if !force && now.Sub(w.lastSave) <= w.cfg.SaveInterval {
		saveTotal.WithLabelValues(kind, "skipped").Inc()
		return nil
	}

	if err := w.store.Save(ctx, w.brain); err != nil {
		saveTotal.WithLabelValues(kind, "error").Inc()
		w.dirty = true
		w.logger.Warn("save failed", slog.String("kind", kind), slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	w.lastSave = now
	w.dirty = false
	saveTotal.WithLabelValues(kind, "ok").Inc()
	w.logger.Debug("brain saved", slog.String("kind", kind))
	return nil
}
