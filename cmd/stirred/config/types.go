// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the stirred YAML configuration.
package config

import (
	"time"

	"github.com/museun/stirred/pkg/telemetry"
)

// Config is the root of stirred.yaml.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Storage   StorageConfig    `yaml:"storage"`
	Brains    BrainsConfig     `yaml:"brains"`
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Address is the listen address, e.g. "localhost:50000".
	Address string `yaml:"address" validate:"required"`

	// ShutdownTimeout bounds graceful shutdown, including final saves.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`

	// RateLimit is generate requests per second per brain. Zero disables it.
	RateLimit float64 `yaml:"rate_limit" validate:"min=0"`

	// RateBurst is the limiter burst size.
	RateBurst int `yaml:"rate_burst" validate:"min=0"`
}

// StorageConfig selects where brains are persisted.
type StorageConfig struct {
	// Backend is "file", "badger", "sqlite" or "gcs".
	Backend string `yaml:"backend" validate:"oneof=file badger sqlite gcs"`

	// Directory holds <name>.sdb files for the file backend.
	Directory string `yaml:"directory" validate:"required_if=Backend file"`

	// Watch hot-loads new files in Directory (file backend only).
	Watch bool `yaml:"watch"`

	// BadgerPath is the BadgerDB directory for the badger backend.
	BadgerPath string `yaml:"badger_path" validate:"required_if=Backend badger"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path" validate:"required_if=Backend sqlite"`

	GCS GCSConfig `yaml:"gcs"`
}

// GCSConfig configures the gcs backend.
type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

// BrainsConfig tunes brain workers.
type BrainsConfig struct {
	// DefaultDepth is used for fresh brains. Default: 5.
	DefaultDepth int `yaml:"default_depth" validate:"min=1,max=16"`

	// MailboxSize bounds each brain's queue. Default: 16.
	MailboxSize int `yaml:"mailbox_size" validate:"min=1"`

	// SaveInterval is the minimum time between interval saves. Default: 5m.
	SaveInterval time.Duration `yaml:"save_interval" validate:"gt=0"`

	// GenerateTimeout bounds each generation. Default: 5s.
	GenerateTimeout time.Duration `yaml:"generate_timeout" validate:"gt=0"`

	// LoadConcurrency bounds parallel loads at startup. Default: 4.
	LoadConcurrency int `yaml:"load_concurrency" validate:"min=1"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         "localhost:50000",
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Backend:   "file",
			Directory: "brains",
			Watch:     true,
		},
		Brains: BrainsConfig{
			DefaultDepth:    5,
			MailboxSize:     16,
			SaveInterval:    5 * time.Minute,
			GenerateTimeout: 5 * time.Second,
			LoadConcurrency: 4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}
