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
	"log/slog"

	"github.com/museun/stirred/cmd/stirred/config"
	"github.com/museun/stirred/pkg/logging"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logJSON    bool

	rootCmd = &cobra.Command{
		Use:          "stirred",
		Short:        "Serve, train and sample variable-order Markov text brains",
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Load every brain from storage and serve them over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in serve.go
	}

	trainCmd = &cobra.Command{
		Use:   "train [input file]",
		Short: "Train a brain offline from a text file, one sentence per line",
		Args:  cobra.ExactArgs(1),
		RunE:  runTrain, // Defined in train.go
	}

	generateCmd = &cobra.Command{
		Use:   "generate [brain file]",
		Short: "Generate sentences from a saved brain file",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerate, // Defined in generate.go
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the stirred configuration file",
	}

	configInitCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "stirred.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			cmd.Printf("wrote %s\n", path)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to stirred.yaml (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON")

	serveCmd.Flags().String("addr", "", "listen address (overrides server.address)")
	serveCmd.Flags().String("dir", "", "brain directory for the file backend (overrides storage.directory)")
	serveCmd.Flags().String("backend", "", "storage backend: file, badger, sqlite or gcs (overrides storage.backend)")

	trainCmd.Flags().StringP("name", "n", "corpora", "name of the brain")
	trainCmd.Flags().StringP("dir", "o", ".", "directory to write <name>.sdb into")
	trainCmd.Flags().IntP("depth", "d", 5, "maximum context width")
	trainCmd.Flags().BoolP("progress", "p", true, "show progress when attached to a terminal")

	generateCmd.Flags().Int("min", 3, "minimum words")
	generateCmd.Flags().Int("max", 5, "maximum words")
	generateCmd.Flags().StringP("query", "q", "", "words to weave into the output")
	generateCmd.Flags().IntP("count", "n", 1, "number of sentences")
	generateCmd.Flags().Uint64("seed", 0, "random seed (0 picks one)")
	generateCmd.Flags().Duration("timeout", 0, "generation timeout (defaults to brains.generate_timeout)")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(serveCmd, trainCmd, generateCmd, configCmd)
}

// loadConfig reads the configuration and applies the global log flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logJSON {
		cfg.Logging.JSON = true
	}
	return cfg, nil
}

// newLogger builds the process logger and installs it as the slog default.
func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Dir,
		Service: "stirred",
		JSON:    cfg.JSON,
	})
	slog.SetDefault(logger.Slog())
	return logger, nil
}
