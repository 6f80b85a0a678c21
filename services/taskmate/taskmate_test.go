// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package taskmate

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	svc, err := New(Config{
		GinMode:       gin.TestMode,
		StoreInMemory: true,
	})
	require.NoError(t, err)
	return svc
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestNewAppliesDefaults(t *testing.T) {
	svc := newTestService(t)
	require.NotNil(t, svc.Router())

	rec := doJSON(t, svc.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyReportsSyncPosture(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc.Router(), http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, false, body["remote_configured"])
	assert.Equal(t, false, body["online"])
}

func TestUnknownAIBackendRejected(t *testing.T) {
	_, err := New(Config{
		GinMode:       gin.TestMode,
		StoreInMemory: true,
		AIBackend:     "claude",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown AI backend")
}

func TestTaskLifecycleThroughServer(t *testing.T) {
	svc := newTestService(t)
	router := svc.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/tasks", map[string]any{
		"title":    "Write release notes",
		"priority": "high",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	rec = doJSON(t, router, http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "Write release notes", listed[0]["title"])

	rec = doJSON(t, router, http.MethodDelete, "/api/tasks/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSuggestServesFallbackWithoutBackend(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc.Router(), http.MethodPost, "/api/ai/suggest", map[string]any{
		"prompt": "launch the beta",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "fallback", body["source"])
	assert.Len(t, body["suggestions"], 3)
}

func TestMetricsEndpointExposed(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc.Router(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRateLimiterBlocksBurstOverflow(t *testing.T) {
	limiter := newRateLimiter(RateLimitConfig{RequestsPerMinute: 10, Burst: 2})

	assert.True(t, limiter.allow("10.0.0.1"))
	assert.True(t, limiter.allow("10.0.0.1"))
	assert.False(t, limiter.allow("10.0.0.1"))

	// Other clients have their own bucket.
	assert.True(t, limiter.allow("10.0.0.2"))
}

func TestRateLimiterEvictsWhenFull(t *testing.T) {
	limiter := newRateLimiter(RateLimitConfig{RequestsPerMinute: 10, MaxClients: 2})

	limiter.allow("a")
	limiter.allow("b")
	limiter.allow("c")

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.LessOrEqual(t, len(limiter.clients), 2)
	assert.Contains(t, limiter.clients, "c")
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/limited", RateLimit(RateLimitConfig{RequestsPerMinute: 10, Burst: 1}),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := doJSON(t, router, http.MethodPost, "/limited", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/limited", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Rate limit exceeded", body["error"])
	assert.Equal(t, "RATE_LIMITED", body["code"])
}
