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

// Link is a weighted candidate token.
type Link struct {
	Token Token
	Count uint64
}

// NewLink returns a Link for token with a count of one.
func NewLink(token Token) Link {
	return Link{Token: token, Count: 1}
}

// Merge adds other's count to l. Both links must carry the same token.
func (l *Link) Merge(other Link) {
	l.Count += other.Count
}

// EdgeSet is the ordered set of links observed after one context.
//
// Links are kept in first-seen order and a token appears at most once.
// An EdgeSet only grows: counts increase and new links are appended, nothing
// is ever removed.
type EdgeSet struct {
	links []Link
}

// NewEdgeSet returns a set holding a single link for token.
func NewEdgeSet(token Token) *EdgeSet {
	return &EdgeSet{links: []Link{NewLink(token)}}
}

// Insert records one observation of token.
func (s *EdgeSet) Insert(token Token) {
	for i := range s.links {
		if s.links[i].Token == token {
			s.links[i].Count++
			return
		}
	}
	s.links = append(s.links, NewLink(token))
}

// Len returns the number of distinct tokens in the set.
func (s *EdgeSet) Len() int {
	return len(s.links)
}

// Links returns a copy of the links in insertion order.
func (s *EdgeSet) Links() []Link {
	out := make([]Link, len(s.links))
	copy(out, s.links)
	return out
}

// Count returns the weight recorded for token, or zero if it was never seen.
func (s *EdgeSet) Count(token Token) uint64 {
	for _, l := range s.links {
		if l.Token == token {
			return l.Count
		}
	}
	return 0
}
