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
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire field numbers. The layout is protobuf-compatible:
//
//	brain  { 1: name, 2: depth, 3: head word (repeated), 4: entry (repeated) }
//	entry  { 1: context word (repeated), 2: link (repeated) }
//	link   { 1: word | 2: end, 3: count }
const (
	fieldName  protowire.Number = 1
	fieldDepth protowire.Number = 2
	fieldHead  protowire.Number = 3
	fieldEntry protowire.Number = 4

	fieldEntryWord protowire.Number = 1
	fieldEntryLink protowire.Number = 2

	fieldLinkWord  protowire.Number = 1
	fieldLinkEnd   protowire.Number = 2
	fieldLinkCount protowire.Number = 3
)

// MarshalBinary encodes the brain. Chain entries are written in key order,
// so equal brains encode to equal bytes.
func (b *Brain) MarshalBinary() ([]byte, error) {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldName, protowire.BytesType)
	buf = protowire.AppendString(buf, b.name)
	buf = protowire.AppendTag(buf, fieldDepth, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(b.depth))

	for _, w := range b.head {
		buf = protowire.AppendTag(buf, fieldHead, protowire.BytesType)
		buf = protowire.AppendString(buf, w)
	}

	keys := make([]string, 0, len(b.chain))
	for k := range b.chain {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var entry []byte
	for _, k := range keys {
		entry = appendEntry(entry[:0], k, b.chain[k])
		buf = protowire.AppendTag(buf, fieldEntry, protowire.BytesType)
		buf = protowire.AppendBytes(buf, entry)
	}
	return buf, nil
}

func appendEntry(buf []byte, key string, set *EdgeSet) []byte {
	for _, w := range strings.Split(key, keySep) {
		buf = protowire.AppendTag(buf, fieldEntryWord, protowire.BytesType)
		buf = protowire.AppendString(buf, w)
	}

	var link []byte
	for _, l := range set.links {
		link = link[:0]
		if word, ok := l.Token.Word(); ok {
			link = protowire.AppendTag(link, fieldLinkWord, protowire.BytesType)
			link = protowire.AppendString(link, word)
		} else {
			link = protowire.AppendTag(link, fieldLinkEnd, protowire.VarintType)
			link = protowire.AppendVarint(link, 1)
		}
		link = protowire.AppendTag(link, fieldLinkCount, protowire.VarintType)
		link = protowire.AppendVarint(link, l.Count)

		buf = protowire.AppendTag(buf, fieldEntryLink, protowire.BytesType)
		buf = protowire.AppendBytes(buf, link)
	}
	return buf
}

// UnmarshalBinary replaces b with the decoded brain.
//
// Every chain invariant is checked: depth >= 1, contexts of 1..depth
// non-empty words, non-empty edge sets with distinct tokens and positive
// counts. Any violation yields an error wrapping ErrCorrupt and leaves b
// unchanged.
func (b *Brain) UnmarshalBinary(data []byte) error {
	out := &Brain{
		chain:     make(map[string]*EdgeSet),
		headIndex: make(map[string]struct{}),
	}
	var entries [][]byte

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return corrupt("tag", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return corrupt("name", protowire.ParseError(n))
			}
			out.name = string(v)
			data = data[n:]

		case num == fieldDepth && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return corrupt("depth", protowire.ParseError(n))
			}
			if v < 1 || v > 1<<16 {
				return corrupt("depth", fmt.Errorf("out of range: %d", v))
			}
			out.depth = int(v)
			data = data[n:]

		case num == fieldHead && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return corrupt("head", protowire.ParseError(n))
			}
			w := string(v)
			if !validWord(w) {
				return corrupt("head", errors.New("invalid word"))
			}
			if _, dup := out.headIndex[w]; dup {
				return corrupt("head", errors.New("duplicate word"))
			}
			out.headIndex[w] = struct{}{}
			out.head = append(out.head, w)
			data = data[n:]

		case num == fieldEntry && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return corrupt("entry", protowire.ParseError(n))
			}
			entries = append(entries, v)
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return corrupt("field", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if out.depth == 0 {
		return corrupt("depth", errors.New("missing"))
	}
	for _, e := range entries {
		if err := out.decodeEntry(e); err != nil {
			return err
		}
	}

	*b = *out
	return nil
}

func (b *Brain) decodeEntry(data []byte) error {
	var words []string
	set := &EdgeSet{}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return corrupt("entry tag", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldEntryWord && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return corrupt("context", protowire.ParseError(n))
			}
			w := string(v)
			if !validWord(w) {
				return corrupt("context", errors.New("invalid word"))
			}
			words = append(words, w)
			data = data[n:]

		case num == fieldEntryLink && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return corrupt("link", protowire.ParseError(n))
			}
			link, err := decodeLink(v)
			if err != nil {
				return err
			}
			if set.Count(link.Token) > 0 {
				return corrupt("link", errors.New("duplicate token"))
			}
			set.links = append(set.links, link)
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return corrupt("entry field", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if len(words) == 0 || len(words) > b.depth {
		return corrupt("context", fmt.Errorf("width %d outside 1..%d", len(words), b.depth))
	}
	if set.Len() == 0 {
		return corrupt("entry", errors.New("empty edge set"))
	}
	key := strings.Join(words, keySep)
	if _, dup := b.chain[key]; dup {
		return corrupt("entry", errors.New("duplicate context"))
	}
	b.chain[key] = set
	return nil
}

func decodeLink(data []byte) (Link, error) {
	var (
		link    Link
		hasWord bool
		hasEnd  bool
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Link{}, corrupt("link tag", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldLinkWord && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Link{}, corrupt("link word", protowire.ParseError(n))
			}
			w := string(v)
			if !validWord(w) {
				return Link{}, corrupt("link word", errors.New("invalid word"))
			}
			link.Token = WordToken(w)
			hasWord = true
			data = data[n:]

		case num == fieldLinkEnd && typ == protowire.VarintType:
			_, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Link{}, corrupt("link end", protowire.ParseError(n))
			}
			link.Token = End
			hasEnd = true
			data = data[n:]

		case num == fieldLinkCount && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Link{}, corrupt("link count", protowire.ParseError(n))
			}
			link.Count = v
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Link{}, corrupt("link field", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if hasWord == hasEnd {
		return Link{}, corrupt("link", errors.New("token must be exactly one of word or end"))
	}
	if link.Count == 0 {
		return Link{}, corrupt("link", errors.New("zero count"))
	}
	return link, nil
}

func validWord(w string) bool {
	return w != "" && strings.IndexFunc(w, unicode.IsSpace) < 0
}

func corrupt(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCorrupt, what, err)
}
