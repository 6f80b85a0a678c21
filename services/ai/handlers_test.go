// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ai

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, llm LLMClient, middleware ...gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	h := NewHandlers(NewService(llm, DefaultCacheConfig(), nil))
	RegisterRoutes(router.Group("/v1"), h, middleware...)
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSuggestEndpoint(t *testing.T) {
	llm := &scriptedLLM{output: `[{"title": "Pack boxes", "priority": "high", "tags": ["moving"]}]`}
	router := newTestRouter(t, llm)

	w := postJSON(t, router, "/v1/ai/suggest", map[string]any{
		"prompt":    "prepare for the move",
		"taskCount": 1,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp SuggestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, SourceAI, resp.Source)
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, "Pack boxes", resp.Suggestions[0].Title)
}

func TestSuggestEndpointFallback(t *testing.T) {
	router := newTestRouter(t, nil)

	w := postJSON(t, router, "/v1/ai/suggest", map[string]any{
		"prompt": "prepare for the move",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp SuggestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, SourceFallback, resp.Source)
	assert.Len(t, resp.Suggestions, 3, "default count")
}

func TestSuggestEndpointValidation(t *testing.T) {
	router := newTestRouter(t, nil)

	w := postJSON(t, router, "/v1/ai/suggest", map[string]any{
		"prompt": strings.Repeat("x", 501),
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_INPUT", resp.Code)
	assert.NotEmpty(t, resp.Details)

	w = postJSON(t, router, "/v1/ai/suggest", map[string]any{
		"prompt": "ok", "taskCount": 9,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSummarizeEndpoint(t *testing.T) {
	llm := &scriptedLLM{output: "Short recap."}
	router := newTestRouter(t, llm)

	text := strings.Repeat("Lots of detail in this paragraph. ", 8)
	w := postJSON(t, router, "/v1/ai/summarize", map[string]any{
		"text":      text,
		"maxLength": 80,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp SummarizeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Short recap.", resp.Summary)
	assert.Equal(t, len(text), resp.OriginalLength)
}

func TestSummarizeEndpointValidation(t *testing.T) {
	router := newTestRouter(t, nil)

	w := postJSON(t, router, "/v1/ai/summarize", map[string]any{
		"text": strings.Repeat("x", 2001),
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, router, "/v1/ai/summarize", map[string]any{
		"text": "fine", "maxLength": 10,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEndpointMiddlewareApplies(t *testing.T) {
	denyAll := func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
			Error: "Rate limit exceeded",
			Code:  "RATE_LIMITED",
		})
	}
	router := newTestRouter(t, nil, denyAll)

	w := postJSON(t, router, "/v1/ai/suggest", map[string]any{"prompt": "x"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
