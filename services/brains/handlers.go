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
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ServiceVersion is the HTTP API version reported by /health.
const ServiceVersion = "0.1.0"

const (
	defaultGenerateMin = 3
	defaultGenerateMax = 5
)

// Handlers contains the HTTP handlers for the brain service.
type Handlers struct {
	svc *Service

	limit    rate.Limit
	burst    int
	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc, limit: rate.Inf}
}

// WithRateLimit limits generate requests per brain to perSecond with the
// given burst. A non-positive perSecond disables limiting.
func (h *Handlers) WithRateLimit(perSecond float64, burst int) *Handlers {
	if perSecond <= 0 {
		h.limit = rate.Inf
		return h
	}
	h.limit = rate.Limit(perSecond)
	h.burst = max(burst, 1)
	h.limiters = make(map[string]*rate.Limiter)
	return h
}

func (h *Handlers) allow(name string) bool {
	if h.limit == rate.Inf {
		return true
	}
	h.limitMu.Lock()
	lim, ok := h.limiters[name]
	if !ok {
		lim = rate.NewLimiter(h.limit, h.burst)
		h.limiters[name] = lim
	}
	h.limitMu.Unlock()
	return lim.Allow()
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
		Brains:  h.svc.Registry().Len(),
	})
}

// HandleList handles GET /v1/brains.
func (h *Handlers) HandleList(c *gin.Context) {
	c.JSON(http.StatusOK, ListResponse{Brains: h.svc.List()})
}

// HandleInfo handles GET /v1/brains/:name.
//
// Response:
//
//	200 OK: Info
//	404 Not Found: Unknown brain
func (h *Handlers) HandleInfo(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleInfo")

	info, err := h.svc.Info(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// HandleCreate handles POST /v1/brains/:name/create.
//
// Description:
//
//	Creates an empty brain and saves it immediately. The body is optional;
//	depth defaults to 5.
//
// Response:
//
//	200 OK: Brain created and saved
//	400 Bad Request: Invalid name or depth
//	409 Conflict: Brain already exists
//	503 Service Unavailable: Brain created but the save failed
func (h *Handlers) HandleCreate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreate")

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return
	}
	if req.Depth == 0 {
		req.Depth = DefaultDepth
	}

	name := c.Param("name")
	if err := h.svc.Create(c.Request.Context(), name, req.Depth); err != nil {
		writeError(c, logger, err)
		return
	}

	logger.Info("Brain created", "brain", name, "depth", req.Depth)
	c.Status(http.StatusOK)
}

// HandleGenerate handles GET and POST /v1/brains/:name/generate.
//
// Description:
//
//	Generates a sentence. Bounds come from the JSON body on POST, or the
//	query string on GET; min and max default to 3 and 5.
//
// Response:
//
//	200 OK: GenerateResponse
//	400 Bad Request: Invalid bounds
//	404 Not Found: Unknown brain
//	429 Too Many Requests: Rate limit exceeded
//	503 Service Unavailable: Untrained brain or deadline exceeded
func (h *Handlers) HandleGenerate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGenerate")

	req := GenerateRequest{Min: defaultGenerateMin, Max: defaultGenerateMax}
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&req)
	} else {
		err = c.ShouldBindJSON(&req)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	}
	if err != nil {
		logger.Warn("Invalid request", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Code: "INVALID_REQUEST"})
		return
	}

	name := c.Param("name")
	if !h.allow(name) {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded", Code: "RATE_LIMITED"})
		return
	}

	data, err := h.svc.Generate(c.Request.Context(), name, Generate{
		Min:   req.Min,
		Max:   req.Max,
		Query: req.Query,
	})
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, GenerateResponse{Data: data})
}

// HandleTrain handles POST /v1/brains/:name/train.
//
// Response:
//
//	200 OK: Trained (and saved if the save interval elapsed)
//	400 Bad Request: Missing or empty data
//	404 Not Found: Unknown brain
//	503 Service Unavailable: Save failed
func (h *Handlers) HandleTrain(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleTrain")

	var req TrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	if err := h.svc.Train(c.Request.Context(), c.Param("name"), req.Data); err != nil {
		writeError(c, logger, err)
		return
	}
	c.Status(http.StatusOK)
}

// HandleSave handles POST /v1/brains/:name/save.
func (h *Handlers) HandleSave(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSave")

	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	if err := h.svc.Save(c.Request.Context(), c.Param("name"), req.Force); err != nil {
		writeError(c, logger, err)
		return
	}
	c.Status(http.StatusOK)
}

// errorStatus maps a service error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, ErrExists):
		return http.StatusConflict, "ALREADY_EXISTS"
	case errors.Is(err, ErrGenerationEmpty):
		return http.StatusServiceUnavailable, "GENERATION_EMPTY"
	case errors.Is(err, ErrPersistence):
		return http.StatusServiceUnavailable, "PERSISTENCE_FAILED"
	case errors.Is(err, ErrStopped):
		return http.StatusServiceUnavailable, "STOPPED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func writeError(c *gin.Context, logger *slog.Logger, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err, "code", code)
	} else {
		logger.Info("Request rejected", "error", err, "code", code)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// getOrCreateRequestID returns the X-Request-ID header or a new UUID,
// echoing it back on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
