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
	"math/rand/v2"
	"os"

	"github.com/museun/stirred/pkg/markov"
	"github.com/museun/stirred/services/brains/storage"
	"github.com/spf13/cobra"
)

func runGenerate(cmd *cobra.Command, args []string) error {
	minWords, _ := cmd.Flags().GetInt("min")
	maxWords, _ := cmd.Flags().GetInt("max")
	query, _ := cmd.Flags().GetString("query")
	count, _ := cmd.Flags().GetInt("count")
	seed, _ := cmd.Flags().GetUint64("seed")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if timeout == 0 {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		timeout = cfg.Brains.GenerateTimeout
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	brain, err := storage.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("load %s: %w", args[0], err)
	}

	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed))

	opts := markov.GenerateOptions{Min: minWords, Max: maxWords, Query: query, Timeout: timeout}
	for i := 0; i < count; i++ {
		out, err := brain.Generate(context.Background(), rng, opts)
		switch {
		case errors.Is(err, markov.ErrTimeout):
			cmd.PrintErrln(styleMuted.Render("(timed out)"))
			continue
		case err != nil:
			return err
		}
		cmd.Println(out)
	}
	return nil
}
