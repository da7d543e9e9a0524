// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/museun/stirred/cmd/stirred/config"
	"github.com/museun/stirred/pkg/telemetry"
	"github.com/museun/stirred/services/brains"
	"github.com/museun/stirred/services/brains/storage"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		cfg.Server.Address = v
	}
	if v, _ := cmd.Flags().GetString("dir"); v != "" {
		cfg.Storage.Directory = v
	}
	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.Storage.Backend = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	svc := brains.NewService(store, brains.ServiceConfig{
		Worker: brains.WorkerConfig{
			MailboxSize:     cfg.Brains.MailboxSize,
			SaveInterval:    cfg.Brains.SaveInterval,
			GenerateTimeout: cfg.Brains.GenerateTimeout,
		},
		DefaultDepth:    cfg.Brains.DefaultDepth,
		LoadConcurrency: cfg.Brains.LoadConcurrency,
	}, logger.Slog())

	if _, err := svc.LoadAll(ctx); err != nil {
		_ = svc.Shutdown(context.Background())
		return fmt.Errorf("load brains: %w", err)
	}

	watchDone := make(chan struct{})
	watchCtx, stopWatch := context.WithCancel(ctx)
	if cfg.Storage.Backend == "file" && cfg.Storage.Watch {
		w, err := brains.NewWatcher(cfg.Storage.Directory, svc, 500*time.Millisecond, logger.Slog())
		if err != nil {
			slog.Warn("brain directory watcher disabled", "error", err)
			close(watchDone)
		} else {
			go func() {
				defer close(watchDone)
				_ = w.Run(watchCtx)
			}()
		}
	} else {
		close(watchDone)
	}

	gin.SetMode(gin.ReleaseMode)
	handlers := brains.NewHandlers(svc).WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst)
	router := brains.NewRouter(handlers, cfg.Telemetry.ServiceName, telemetry.MetricsHandler())

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("stirred listening", "address", cfg.Server.Address, "brains", len(svc.List()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			slog.Error("server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	stopWatch()
	<-watchDone

	if err := svc.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown brains: %w", err)
	}
	return nil
}

// openStore creates the configured storage backend.
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case "file":
		return storage.NewFileStore(cfg.Directory, slog.Default())
	case "badger":
		bcfg := storage.DefaultBadgerConfig(cfg.BadgerPath)
		bcfg.Logger = slog.Default().With("component", "badger")
		return storage.NewBadgerStore(bcfg)
	case "sqlite":
		return storage.NewSQLiteStore(ctx, cfg.SQLitePath, slog.Default())
	case "gcs":
		return storage.NewGCSStore(ctx, storage.GCSConfig{
			Bucket:          cfg.GCS.Bucket,
			Prefix:          cfg.GCS.Prefix,
			CredentialsFile: cfg.GCS.CredentialsFile,
			Logger:          slog.Default(),
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
