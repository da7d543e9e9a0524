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
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the brain endpoints with the router group.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	h - The handlers instance
//
// Endpoints:
//
//	GET      /v1/brains                - List brains
//	GET      /v1/brains/:name          - Brain statistics
//	POST     /v1/brains/:name/create   - Create an empty brain
//	GET|POST /v1/brains/:name/generate - Generate a sentence
//	POST     /v1/brains/:name/train    - Train on a line of text
//	POST     /v1/brains/:name/save     - Save (interval or forced)
//	GET      /v1/brains/:name/ws       - Websocket message stream
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	brains := rg.Group("/brains")
	{
		brains.GET("", h.HandleList)
		brains.GET("/:name", h.HandleInfo)
		brains.POST("/:name/create", h.HandleCreate)
		brains.GET("/:name/generate", h.HandleGenerate)
		brains.POST("/:name/generate", h.HandleGenerate)
		brains.POST("/:name/train", h.HandleTrain)
		brains.POST("/:name/save", h.HandleSave)
		brains.GET("/:name/ws", h.HandleWebSocket)
	}
}

// NewRouter builds the HTTP engine: recovery and tracing middleware,
// /health, /metrics (when metrics is non-nil) and the /v1 brain routes.
func NewRouter(h *Handlers, serviceName string, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))

	router.GET("/health", h.HandleHealth)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	RegisterRoutes(router.Group("/v1"), h)
	return router
}
