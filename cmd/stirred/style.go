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
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	styleBar   = lipgloss.NewStyle().Foreground(lipgloss.Color("#20B9B4"))
	styleTrack = lipgloss.NewStyle().Foreground(lipgloss.Color("#2C4A54"))
	styleMuted = lipgloss.NewStyle().Foreground(lipgloss.Color("#7F8C8D"))
	styleOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("#2CD7C7")).Bold(true)
)

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// progress draws a single-line progress bar. A nil *progress draws nothing.
type progress struct {
	w     io.Writer
	total int
	width int
	last  int
}

func newProgress(w io.Writer, total int) *progress {
	return &progress{w: w, total: max(total, 1), width: 40, last: -1}
}

// set redraws the bar when the percentage changes.
func (p *progress) set(n int) {
	if p == nil {
		return
	}
	pct := n * 100 / p.total
	if pct == p.last {
		return
	}
	p.last = pct

	filled := p.width * n / p.total
	bar := styleBar.Render(strings.Repeat("═", filled)) +
		styleTrack.Render(strings.Repeat("━", p.width-filled))
	fmt.Fprintf(p.w, "\r%3d%% %s %s", pct, bar, styleMuted.Render(fmt.Sprintf("%d/%d", n, p.total)))
}

func (p *progress) done() {
	if p == nil {
		return
	}
	p.set(p.total)
	fmt.Fprintln(p.w)
}
