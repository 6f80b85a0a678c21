// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ai

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ErrorResponse is the JSON error envelope for the AI endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// Handlers contains the HTTP handlers for the AI proxy.
type Handlers struct {
	svc Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc Service) *Handlers {
	return &Handlers{svc: svc}
}

func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// HandleSuggest handles POST /api/ai/suggest.
//
// Description:
//
//	Generates task suggestions for a free-form prompt. When the LLM
//	backend fails or is not configured, deterministic fallback
//	suggestions are returned with source "fallback"; the endpoint
//	only errors on invalid input.
//
// Request Body:
//
//	SuggestRequest
//
// Response:
//
//	200 OK: SuggestResponse
//	400 Bad Request: validation error
//	429 Too Many Requests: rate limited (middleware)
func (h *Handlers) HandleSuggest(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSuggest")

	var req SuggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	resp, err := h.svc.Suggest(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid input",
				Code:    "INVALID_INPUT",
				Details: err.Error(),
			})
			return
		}
		logger.Error("Suggest failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Code:  "SUGGEST_FAILED",
		})
		return
	}

	logger.Info("Suggestions generated",
		"count", len(resp.Suggestions),
		"source", resp.Source)
	c.JSON(http.StatusOK, resp)
}

// HandleSummarize handles POST /api/ai/summarize.
//
// Request Body:
//
//	SummarizeRequest
//
// Response:
//
//	200 OK: SummarizeResponse
//	400 Bad Request: validation error
//	429 Too Many Requests: rate limited (middleware)
func (h *Handlers) HandleSummarize(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSummarize")

	var req SummarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	resp, err := h.svc.Summarize(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid input",
				Code:    "INVALID_INPUT",
				Details: err.Error(),
			})
			return
		}
		logger.Error("Summarize failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Code:  "SUMMARIZE_FAILED",
		})
		return
	}

	logger.Info("Summary generated",
		"original_length", resp.OriginalLength,
		"summary_length", resp.SummaryLength,
		"source", resp.Source)
	c.JSON(http.StatusOK, resp)
}
