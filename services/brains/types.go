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

// CreateRequest is the body of POST /v1/brains/:name/create.
type CreateRequest struct {
	// Depth is the maximum context width. Default: 5.
	Depth int `json:"depth"`
}

// GenerateRequest is the body (or query) of /v1/brains/:name/generate.
type GenerateRequest struct {
	// Min is the minimum number of words. Default: 3.
	Min int `json:"min" form:"min"`

	// Max is the maximum number of words. Default: 5.
	Max int `json:"max" form:"max"`

	// Query holds optional words to include in the output.
	Query string `json:"query" form:"query"`
}

// GenerateResponse is the reply to a successful generate.
type GenerateResponse struct {
	Data string `json:"data"`
}

// TrainRequest is the body of POST /v1/brains/:name/train.
type TrainRequest struct {
	Data string `json:"data" binding:"required"`
}

// SaveRequest is the optional body of POST /v1/brains/:name/save.
type SaveRequest struct {
	Force bool `json:"force"`
}

// ListResponse is the reply to GET /v1/brains.
type ListResponse struct {
	Brains []string `json:"brains"`
}

// HealthResponse is the reply to GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Brains  int    `json:"brains"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`
}

// Frame is one websocket message. Clients send frames with Type train,
// generate, save, force_save or info; the server answers each with one
// frame of type ok, generated, info or error.
type Frame struct {
	Type  string `json:"type"`
	Data  string `json:"data,omitempty"`
	Min   int    `json:"min,omitempty"`
	Max   int    `json:"max,omitempty"`
	Query string `json:"query,omitempty"`
	Info  *Info  `json:"info,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}
