// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package markov

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"
)

// GenerateOptions bounds one generation.
type GenerateOptions struct {
	// Min is the minimum number of words to produce. Must be >= 1.
	Min int

	// Max is the maximum number of words rendered. Must be >= Min.
	Max int

	// Query holds optional anchor words, separated by whitespace, that are
	// woven into the output at non-adjacent positions.
	Query string

	// Timeout bounds wall-clock time. Zero means only ctx bounds it.
	Timeout time.Duration
}

// Generate produces a synthetic sentence.
//
// Description:
//
//	Starts from a random start word and walks the chain until Min words are
//	produced, starting a new sentence from a fresh start word whenever the
//	walk reaches End. Output stops at Max words. Query words are shuffled
//	and spliced in at random non-adjacent positions. The deadline is checked
//	before every produced word.
//
// Inputs:
//
//	ctx - Bounds generation together with opts.Timeout.
//	rng - Random source. With a fixed source and an unchanged brain the
//	      result is deterministic.
//	opts - Length bounds, query and timeout.
//
// Outputs:
//
//	string - Up to Max words joined by single spaces. Words that are not
//	         valid UTF-8 are skipped but still count toward the length.
//	error - ErrUntrained, ErrTimeout or ErrInvalidBounds.
func (b *Brain) Generate(ctx context.Context, rng *rand.Rand, opts GenerateOptions) (string, error) {
	if opts.Min < 1 || opts.Max < opts.Min {
		return "", ErrInvalidBounds
	}
	if len(b.head) == 0 {
		return "", ErrUntrained
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	g := &generation{
		rng:     rng,
		anchors: strings.Fields(opts.Query),
	}
	rng.Shuffle(len(g.anchors), func(i, j int) {
		g.anchors[i], g.anchors[j] = g.anchors[j], g.anchors[i]
	})

outer:
	for len(g.words) < opts.Min {
		if ctx.Err() != nil {
			return "", ErrTimeout
		}

		g.maybeSplice()
		g.words = append(g.words, b.head[rng.IntN(len(b.head))])
		if len(g.words) >= opts.Max {
			break
		}

		for {
			if ctx.Err() != nil {
				return "", ErrTimeout
			}
			word, ok := b.selectToken(rng, trailing(g.words, b.depth)).Word()
			if !ok {
				break
			}
			g.maybeSplice()
			g.words = append(g.words, word)
			if len(g.words) >= opts.Max {
				break outer
			}
		}
	}

	for len(g.anchors) > 0 {
		g.splice(g.pop())
	}

	return render(g.words, opts.Max), nil
}

// generation holds the per-call state of Generate.
type generation struct {
	rng     *rand.Rand
	words   []string
	anchors []string

	// placed holds the current index of every spliced anchor. Indices move
	// when a later anchor is inserted in front of them.
	placed []int
}

func (g *generation) pop() string {
	last := g.anchors[len(g.anchors)-1]
	g.anchors = g.anchors[:len(g.anchors)-1]
	return last
}

// maybeSplice places a pending anchor with probability pending/(pending+1),
// once the output has more than one word.
func (g *generation) maybeSplice() {
	pending := len(g.anchors)
	if pending == 0 || len(g.words) <= 1 {
		return
	}
	if g.rng.Float64() < float64(pending)/float64(pending+1) {
		g.splice(g.pop())
	}
}

// splice inserts word at a free position. Candidates are [1, n-1] (or {1}
// for n <= 1), then n itself; a candidate is free when the inserted word
// would not neighbour a placed anchor. With none free the word is dropped.
func (g *generation) splice(word string) {
	n := len(g.words)

	var free []int
	for i := 1; i <= max(n-1, 1); i++ {
		if at := min(i, n); g.freeAt(at) {
			free = append(free, at)
		}
	}
	if len(free) == 0 {
		if !g.freeAt(n) {
			return
		}
		free = append(free, n)
	}

	at := free[g.rng.IntN(len(free))]
	for i, p := range g.placed {
		if p >= at {
			g.placed[i]++
		}
	}
	g.placed = append(g.placed, at)

	g.words = append(g.words, "")
	copy(g.words[at+1:], g.words[at:])
	g.words[at] = word
}

// freeAt reports whether inserting at index at keeps every anchor apart.
// The word at index at shifts to at+1, so anchors at at-1 or at would end
// up adjacent.
func (g *generation) freeAt(at int) bool {
	for _, p := range g.placed {
		if p == at-1 || p == at {
			return false
		}
	}
	return true
}

func render(words []string, limit int) string {
	if len(words) > limit {
		words = words[:limit]
	}

	var sb strings.Builder
	for _, w := range words {
		if !utf8.ValidString(w) {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(w)
	}
	return sb.String()
}
