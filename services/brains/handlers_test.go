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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(t *testing.T) (*gin.Engine, *Service, *memStore) {
	t.Helper()
	store := newMemStore()
	svc, _ := newTestService(t, store)
	router := NewRouter(NewHandlers(svc), "stirred-test", http.NotFoundHandler())
	return router, svc, store
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandleHealth(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := doRequest(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceVersion, resp.Version)
}

func TestHandleCreate(t *testing.T) {
	router, svc, store := setupTestRouter(t)

	w := doRequest(router, http.MethodPost, "/v1/brains/alpha/create", `{"depth":3}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, store.saveCount("alpha"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	info, err := svc.Info(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Depth)

	w = doRequest(router, http.MethodPost, "/v1/brains/alpha/create", `{"depth":3}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_EXISTS", decodeError(t, w).Code)
}

func TestHandleCreate_DefaultDepth(t *testing.T) {
	router, svc, _ := setupTestRouter(t)

	w := doRequest(router, http.MethodPost, "/v1/brains/plain/create", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	info, err := svc.Info(context.Background(), "plain")
	require.NoError(t, err)
	assert.Equal(t, DefaultDepth, info.Depth)
}

func TestHandleCreate_Invalid(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := doRequest(router, http.MethodPost, "/v1/brains/bad.name/create", `{"depth":3}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeError(t, w).Code)

	w = doRequest(router, http.MethodPost, "/v1/brains/ok/create", `{"depth":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, w).Code)
}

func TestHandleCreate_SaveFailure(t *testing.T) {
	router, _, store := setupTestRouter(t)
	store.setFail("doomed", true)

	w := doRequest(router, http.MethodPost, "/v1/brains/doomed/create", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "PERSISTENCE_FAILED", decodeError(t, w).Code)
}

func TestHandleTrainAndGenerate(t *testing.T) {
	router, _, _ := setupTestRouter(t)
	require.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/v1/brains/abc/create", `{"depth":3}`).Code)

	w := doRequest(router, http.MethodPost, "/v1/brains/abc/generate", `{"min":3,"max":3}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "GENERATION_EMPTY", decodeError(t, w).Code)

	w = doRequest(router, http.MethodPost, "/v1/brains/abc/train", `{"data":"a b c"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doRequest(router, http.MethodPost, "/v1/brains/abc/generate", `{"min":3,"max":3}`)
	if w.Code == http.StatusOK {
		var resp GenerateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "a b c", resp.Data)
	} else {
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	}

	w = doRequest(router, http.MethodGet, "/v1/brains/abc/generate?min=1&max=3", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data)
}

func TestHandleGenerate_Defaults(t *testing.T) {
	router, svc, _ := setupTestRouter(t)
	require.NoError(t, svc.Create(context.Background(), "d", 2))
	require.NoError(t, svc.Train(context.Background(), "d", "one two three four five six seven"))

	w := doRequest(router, http.MethodPost, "/v1/brains/d/generate", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	n := len(strings.Fields(resp.Data))
	assert.GreaterOrEqual(t, n, defaultGenerateMin)
	assert.LessOrEqual(t, n, defaultGenerateMax)
}

func TestHandleGenerate_BadBounds(t *testing.T) {
	router, svc, _ := setupTestRouter(t)
	require.NoError(t, svc.Create(context.Background(), "b", 2))

	w := doRequest(router, http.MethodPost, "/v1/brains/b/generate", `{"min":9,"max":2}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeError(t, w).Code)
}

func TestHandleGenerate_RateLimited(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store)
	router := NewRouter(NewHandlers(svc).WithRateLimit(0.001, 1), "stirred-test", nil)
	require.NoError(t, svc.Create(context.Background(), "r", 2))
	require.NoError(t, svc.Train(context.Background(), "r", "x y z"))

	w := doRequest(router, http.MethodGet, "/v1/brains/r/generate?min=1&max=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/v1/brains/r/generate?min=1&max=1", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestHandlers_NotFound(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/v1/brains/ghost", ""},
		{http.MethodPost, "/v1/brains/ghost/generate", `{}`},
		{http.MethodPost, "/v1/brains/ghost/train", `{"data":"boo"}`},
		{http.MethodPost, "/v1/brains/ghost/save", `{"force":true}`},
	} {
		w := doRequest(router, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusNotFound, w.Code, tc.path)
		assert.Equal(t, "NOT_FOUND", decodeError(t, w).Code, tc.path)
	}
}

func TestHandleTrain_Invalid(t *testing.T) {
	router, svc, _ := setupTestRouter(t)
	require.NoError(t, svc.Create(context.Background(), "t", 2))

	w := doRequest(router, http.MethodPost, "/v1/brains/t/train", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, "/v1/brains/t/train", `{"data":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeError(t, w).Code)
}

func TestHandleSave(t *testing.T) {
	router, svc, store := setupTestRouter(t)
	require.NoError(t, svc.Create(context.Background(), "s", 2))

	w := doRequest(router, http.MethodPost, "/v1/brains/s/save", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, store.saveCount("s"))

	w = doRequest(router, http.MethodPost, "/v1/brains/s/save", `{"force":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, store.saveCount("s"))
}

func TestHandleListAndInfo(t *testing.T) {
	router, svc, _ := setupTestRouter(t)
	require.NoError(t, svc.Create(context.Background(), "one", 2))
	require.NoError(t, svc.Create(context.Background(), "two", 4))

	w := doRequest(router, http.MethodGet, "/v1/brains", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, []string{"one", "two"}, list.Brains)

	w = doRequest(router, http.MethodGet, "/v1/brains/two", "")
	require.Equal(t, http.StatusOK, w.Code)
	var info map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "two", info["name"])
	assert.EqualValues(t, 4, info["depth"])
}

func TestHandleRequestID_Echoed(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/brains/ghost", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestHandleWebSocket(t *testing.T) {
	router, svc, _ := setupTestRouter(t)
	require.NoError(t, svc.Create(context.Background(), "ws", 3))

	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/brains/ws/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	roundTrip := func(f Frame) Frame {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.WriteJSON(f))
		var reply Frame
		require.NoError(t, conn.ReadJSON(&reply))
		return reply
	}

	assert.Equal(t, "ok", roundTrip(Frame{Type: "train", Data: "hello brave new world"}).Type)

	reply := roundTrip(Frame{Type: "generate", Min: 1, Max: 4})
	assert.Equal(t, "generated", reply.Type, reply.Error)
	assert.NotEmpty(t, reply.Data)

	reply = roundTrip(Frame{Type: "info"})
	require.Equal(t, "info", reply.Type)
	require.NotNil(t, reply.Info)
	assert.Equal(t, 1, reply.Info.Head)

	reply = roundTrip(Frame{Type: "generate", Min: 5, Max: 1})
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "VALIDATION_FAILED", reply.Code)

	reply = roundTrip(Frame{Type: "dance"})
	assert.Equal(t, "error", reply.Type)

	assert.Equal(t, "ok", roundTrip(Frame{Type: "force_save"}).Type)
}

func TestHandleWebSocket_NotFound(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := doRequest(router, http.MethodGet, "/v1/brains/ghost/ws", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrValidation, http.StatusBadRequest},
		{ErrExists, http.StatusConflict},
		{ErrGenerationEmpty, http.StatusServiceUnavailable},
		{ErrPersistence, http.StatusServiceUnavailable},
		{ErrStopped, http.StatusServiceUnavailable},
		{bytes.ErrTooLarge, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := errorStatus(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
}
