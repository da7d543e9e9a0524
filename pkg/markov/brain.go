// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package markov implements a variable-order Markov text model.
//
// A Brain learns weighted word-to-word transitions for every context width
// from 1 up to its depth and generates text with a randomized,
// weight-proportional walk over those transitions. Lookups blend all
// matching widths, with wider (more specific) contexts weighted higher.
//
// # Thread Safety
//
// Brain is not safe for concurrent use. Callers that share a Brain across
// goroutines must serialize access; services/brains does this with one
// worker goroutine per Brain.
package markov

import (
	"math/rand/v2"
	"strings"
)

// keySep joins context words into a chain key. Words never contain
// whitespace, so the join is unambiguous.
const keySep = " "

// Brain is one trained Markov chain text model.
type Brain struct {
	name  string
	depth int

	// chain maps a joined context of 1..depth words to its edge set.
	chain map[string]*EdgeSet

	// head holds the start words in first-seen order; headIndex mirrors
	// it for membership checks. Order matters for deterministic generation.
	head      []string
	headIndex map[string]struct{}
}

// NewBrain returns an empty Brain.
//
// Outputs:
//
//	*Brain - The untrained brain.
//	error - ErrInvalidDepth if depth < 1.
func NewBrain(name string, depth int) (*Brain, error) {
	if depth < 1 {
		return nil, ErrInvalidDepth
	}
	return &Brain{
		name:      name,
		depth:     depth,
		chain:     make(map[string]*EdgeSet),
		headIndex: make(map[string]struct{}),
	}, nil
}

// Name returns the brain's name.
func (b *Brain) Name() string { return b.name }

// Depth returns the maximum context width.
func (b *Brain) Depth() int { return b.depth }

// HeadSize returns the number of distinct start words.
func (b *Brain) HeadSize() int { return len(b.head) }

// ContextCount returns the number of stored contexts across all widths.
func (b *Brain) ContextCount() int { return len(b.chain) }

// Trained reports whether the brain has at least one start word.
func (b *Brain) Trained() bool { return len(b.head) > 0 }

// Head returns a copy of the start words in first-seen order.
func (b *Brain) Head() []string {
	out := make([]string, len(b.head))
	copy(out, b.head)
	return out
}

// Lookup returns the edge set stored for the exact context, if any.
func (b *Brain) Lookup(context ...string) (*EdgeSet, bool) {
	set, ok := b.chain[strings.Join(context, keySep)]
	return set, ok
}

// Contexts calls fn for every stored context. Iteration order is unspecified.
// The words slice must not be retained.
func (b *Brain) Contexts(fn func(words []string, set *EdgeSet)) {
	for key, set := range b.chain {
		fn(strings.Split(key, keySep), set)
	}
}

// Stats summarises a brain's size.
type Stats struct {
	Name     string `json:"name"`
	Depth    int    `json:"depth"`
	Head     int    `json:"head"`
	Contexts int    `json:"contexts"`
	Links    int    `json:"links"`
}

// Stats returns a size summary. Cost is linear in the number of contexts.
func (b *Brain) Stats() Stats {
	links := 0
	for _, set := range b.chain {
		links += set.Len()
	}
	return Stats{
		Name:     b.name,
		Depth:    b.depth,
		Head:     len(b.head),
		Contexts: len(b.chain),
		Links:    links,
	}
}

// Train learns the transitions of one line of text.
//
// Description:
//
//	Splits the trimmed text on whitespace and records the first word as a
//	start word. For every width w from 1 to min(depth, words-1), each run of
//	w words is linked to the word that follows it, and the final w words of
//	the line are linked to End. Repeated observations increment the existing
//	link's count.
//
// Outputs:
//
//	error - ErrEmptyText if the text holds no words. The brain is unchanged.
func (b *Brain) Train(text string) error {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ErrEmptyText
	}

	if _, ok := b.headIndex[words[0]]; !ok {
		b.headIndex[words[0]] = struct{}{}
		b.head = append(b.head, words[0])
	}

	width := min(b.depth, len(words)-1)
	for w := 1; w <= width; w++ {
		for i := 0; i+w < len(words); i++ {
			b.link(words[i:i+w], WordToken(words[i+w]))
		}
		b.link(words[len(words)-w:], End)
	}
	return nil
}

func (b *Brain) link(context []string, token Token) {
	key := strings.Join(context, keySep)
	if set, ok := b.chain[key]; ok {
		set.Insert(token)
		return
	}
	b.chain[key] = NewEdgeSet(token)
}

// selectToken picks the next token for the trailing context.
//
// Every width from 1 to min(depth, len(context)) is looked up. Links from a
// width-w match are scaled by w and identical tokens are merged across
// widths, keeping first-seen order. End is returned when nothing matches.
func (b *Brain) selectToken(rng *rand.Rand, context []string) Token {
	upper := min(b.depth, len(context))

	var links []Link
	for w := 1; w <= upper; w++ {
		set, ok := b.chain[strings.Join(context[len(context)-w:], keySep)]
		if !ok {
			continue
		}
		for _, l := range set.links {
			scaled := Link{Token: l.Token, Count: l.Count * uint64(w)}
			merged := false
			for i := range links {
				if links[i].Token == scaled.Token {
					links[i].Merge(scaled)
					merged = true
					break
				}
			}
			if !merged {
				links = append(links, scaled)
			}
		}
	}

	if len(links) == 0 {
		return End
	}
	return weightedSelect(rng, links).Token
}

// weightedSelect draws r uniformly from [0, total) and returns the first link
// at which the running remainder would go negative. links must be non-empty
// and every count must be positive.
func weightedSelect(rng *rand.Rand, links []Link) Link {
	var total uint64
	for _, l := range links {
		total += l.Count
	}

	r := rng.Uint64N(total)
	for _, l := range links {
		if r < l.Count {
			return l
		}
		r -= l.Count
	}
	// Unreachable while every count is positive.
	return links[len(links)-1]
}

// trailing returns the last depth words of words, or all of them if shorter.
func trailing(words []string, depth int) []string {
	return words[max(0, len(words)-depth):]
}
