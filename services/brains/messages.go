// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package brains

import (
	"time"

	"github.com/museun/stirred/pkg/markov"
)

// Request is a message handled by a brain worker. The set of requests is
// closed: Train, Generate, Save, ForceSave and Info.
type Request interface {
	kind() string
}

// Train feeds one line of text to the brain.
type Train struct {
	Data string
}

// Generate asks for a synthetic sentence of Min to Max words. Query holds
// optional words to weave into the output.
type Generate struct {
	Min   int
	Max   int
	Query string
}

// Save persists the brain if the save interval has elapsed since the last
// successful save; otherwise it is acknowledged without writing.
type Save struct{}

// ForceSave persists the brain unconditionally.
type ForceSave struct{}

// InfoRequest asks for a snapshot of brain statistics.
type InfoRequest struct{}

func (Train) kind() string       { return "train" }
func (Generate) kind() string    { return "generate" }
func (Save) kind() string        { return "save" }
func (ForceSave) kind() string   { return "force_save" }
func (InfoRequest) kind() string { return "info" }

// Response is the single reply to a Request. Data is set for Generate and
// Info for InfoRequest; Err is set when the request failed. A response with
// neither is a bare acknowledgement.
type Response struct {
	Data string
	Info *Info
	Err  error
}

// Info describes a brain's size and persistence state.
type Info struct {
	markov.Stats
	LastSave time.Time `json:"last_save"`
	Mailbox  int       `json:"mailbox"`
}
