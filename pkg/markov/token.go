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

import "fmt"

// Token is one candidate continuation for a context.
//
// A Token is either a Word or End. End marks a context after which a
// trained line legitimately stopped. Token is comparable and can be used
// as a map key or compared with ==.
type Token struct {
	word string
	end  bool
}

// End is the token recorded for the tail context of every trained line.
var End = Token{end: true}

// WordToken returns a Token for the given word.
func WordToken(word string) Token {
	return Token{word: word}
}

// IsEnd reports whether t is the End token.
func (t Token) IsEnd() bool {
	return t.end
}

// Word returns the word carried by t. ok is false for End.
func (t Token) Word() (word string, ok bool) {
	if t.end {
		return "", false
	}
	return t.word, true
}

// String implements fmt.Stringer. Words are reported by length only so that
// corpus text never leaks into logs.
func (t Token) String() string {
	if t.end {
		return "Token(End)"
	}
	return fmt.Sprintf("Token(Word, len=%d)", len(t.word))
}
