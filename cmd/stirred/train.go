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
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/museun/stirred/pkg/markov"
	"github.com/museun/stirred/services/brains"
	"github.com/museun/stirred/services/brains/storage"
	"github.com/spf13/cobra"
)

// maxLineSize bounds a single training line.
const maxLineSize = 1 << 20

func runTrain(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	dir, _ := cmd.Flags().GetString("dir")
	depth, _ := cmd.Flags().GetInt("depth")
	showProgress, _ := cmd.Flags().GetBool("progress")

	if err := brains.ValidateName(name); err != nil {
		return err
	}
	brain, err := markov.NewBrain(name, depth)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read training input: %w", err)
	}

	var bar *progress
	if showProgress && isTerminal(os.Stderr) {
		bar = newProgress(os.Stderr, bytes.Count(data, []byte{'\n'})+1)
	}

	start := time.Now()
	lines, skipped, err := trainLines(brain, data, bar.set)
	if err != nil {
		return err
	}
	bar.done()

	store, err := storage.NewFileStore(dir, nil)
	if err != nil {
		return err
	}
	if err := store.Save(cmd.Context(), brain); err != nil {
		return fmt.Errorf("save brain: %w", err)
	}

	stats := brain.Stats()
	cmd.Printf("%s %s: %d lines (%d empty) in %s, %d contexts, %d links\n",
		styleOK.Render("trained"), store.Path(name), lines, skipped,
		time.Since(start).Round(time.Millisecond), stats.Contexts, stats.Links)
	return nil
}

// trainLines trains brain on every line of data. Lines without words are
// counted as skipped. tick receives the number of lines consumed so far.
func trainLines(brain *markov.Brain, data []byte, tick func(int)) (lines, skipped int, err error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for sc.Scan() {
		lines++
		if err := brain.Train(sc.Text()); err != nil {
			if !errors.Is(err, markov.ErrEmptyText) {
				return lines, skipped, err
			}
			skipped++
		}
		tick(lines)
	}
	if err := sc.Err(); err != nil {
		return lines, skipped, fmt.Errorf("read line %d: %w", lines+1, err)
	}
	return lines, skipped, nil
}
