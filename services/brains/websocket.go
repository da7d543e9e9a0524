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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsReadLimit  = 1 << 20
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsWriteWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket handles GET /v1/brains/:name/ws.
//
// Description:
//
//	Upgrades to a websocket carrying Frames. Each client frame is sent to
//	the brain as a request and answered with exactly one frame, in order.
//	The connection closes when the client leaves or the brain is removed.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	name := c.Param("name")
	logger := slog.With("request_id", requestID, "handler", "HandleWebSocket", "brain", name)

	handle, err := h.svc.handle(name)
	if err != nil {
		writeError(c, logger, err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	ws.SetReadLimit(wsReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	frames := make(chan Frame)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(frames)
		for {
			var f Frame
			if err := ws.ReadJSON(&f); err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- f:
			case <-done:
				return
			}
		}
	}()

	ctx := c.Request.Context()
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	logger.Info("Websocket connected")
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				err := <-readErr
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("Websocket read failed", "error", err)
				}
				logger.Info("Websocket disconnected")
				return
			}
			reply := h.handleFrame(c, handle, name, f)
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteJSON(reply); err != nil {
				logger.Warn("Websocket write failed", "error", err)
				return
			}
			if reply.Code == "STOPPED" {
				return
			}

		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// handleFrame turns one client frame into a request and its reply frame.
func (h *Handlers) handleFrame(c *gin.Context, handle *Handle, name string, f Frame) Frame {
	ctx := c.Request.Context()

	var req Request
	switch f.Type {
	case "train":
		req = Train{Data: f.Data}
	case "generate":
		g := Generate{Min: f.Min, Max: f.Max, Query: f.Query}
		if g.Min == 0 {
			g.Min = defaultGenerateMin
		}
		if g.Max == 0 {
			g.Max = max(defaultGenerateMax, g.Min)
		}
		if !h.allow(name) {
			return Frame{Type: "error", Error: "rate limit exceeded", Code: "RATE_LIMITED"}
		}
		if err := validateGenerate(g); err != nil {
			return errorFrame(err)
		}
		req = g
	case "save":
		req = Save{}
	case "force_save":
		req = ForceSave{}
	case "info":
		req = InfoRequest{}
	default:
		return Frame{Type: "error", Error: "unknown frame type " + f.Type, Code: "INVALID_REQUEST"}
	}

	resp, err := handle.Send(ctx, req)
	switch {
	case err != nil:
		return errorFrame(err)
	case resp.Info != nil:
		return Frame{Type: "info", Info: resp.Info}
	case f.Type == "generate":
		return Frame{Type: "generated", Data: resp.Data}
	default:
		return Frame{Type: "ok"}
	}
}

func errorFrame(err error) Frame {
	_, code := errorStatus(err)
	return Frame{Type: "error", Error: err.Error(), Code: code}
}
