// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/taskmate/taskmate/pkg/validation"
)

// ErrInvalidInput indicates the request failed validation.
var ErrInvalidInput = errors.New("invalid input")

var aiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "taskmate_ai_requests_total",
	Help: "AI proxy requests by operation and response source",
}, []string{"operation", "source"})

// =============================================================================
// Request / Response Types
// =============================================================================

// TaskSuggestion is one AI-generated (or fallback) task proposal.
type TaskSuggestion struct {
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	Priority          string   `json:"priority"`
	Tags              []string `json:"tags"`
	EstimatedDuration string   `json:"estimatedDuration,omitempty"`
}

// SuggestRequest is the body of POST /v1/ai/suggest.
type SuggestRequest struct {
	Prompt    string `json:"prompt" validate:"required,max=500"`
	TaskCount int    `json:"taskCount" validate:"omitempty,min=1,max=5"`
}

// SuggestResponse is the suggest endpoint payload.
type SuggestResponse struct {
	Success     bool             `json:"success"`
	Suggestions []TaskSuggestion `json:"suggestions"`
	Source      string           `json:"source"`
}

// SummarizeRequest is the body of POST /v1/ai/summarize.
type SummarizeRequest struct {
	Text      string `json:"text" validate:"required,max=2000"`
	MaxLength int    `json:"maxLength" validate:"omitempty,min=50,max=200"`
}

// SummarizeResponse is the summarize endpoint payload.
type SummarizeResponse struct {
	Success        bool   `json:"success"`
	Summary        string `json:"summary"`
	OriginalLength int    `json:"originalLength"`
	SummaryLength  int    `json:"summaryLength"`
	Source         string `json:"source"`
}

// Response sources.
const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

// =============================================================================
// Service
// =============================================================================

// Service is the AI proxy exposed to handlers and the CLI.
type Service interface {
	// Suggest generates task suggestions for a prompt. Degrades to
	// deterministic local generation when the backend fails.
	Suggest(ctx context.Context, req SuggestRequest) (SuggestResponse, error)

	// Summarize condenses text to roughly maxLength characters.
	// Degrades to extractive summarization when the backend fails.
	Summarize(ctx context.Context, req SummarizeRequest) (SummarizeResponse, error)
}

// service implements Service over an optional LLM backend.
type service struct {
	llm    LLMClient // nil means fallback-only
	cache  *responseCache
	cfg    CacheConfig
	group  singleflight.Group
	logger *slog.Logger
}

var _ Service = (*service)(nil)

// NewService creates the AI proxy.
//
// Inputs:
//
//	llm - The inference backend. May be nil; every request then uses
//	      the deterministic fallback.
//	cacheCfg - Bounds for the response cache.
//	logger - If nil, slog.Default() is used.
func NewService(llm LLMClient, cacheCfg CacheConfig, logger *slog.Logger) Service {
	if cacheCfg.MaxEntries <= 0 {
		cacheCfg = DefaultCacheConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		llm:    llm,
		cache:  newResponseCache(cacheCfg.MaxEntries),
		cfg:    cacheCfg,
		logger: logger.With(slog.String("component", "ai")),
	}
}

const defaultTaskCount = 3

func (s *service) Suggest(ctx context.Context, req SuggestRequest) (SuggestResponse, error) {
	if req.TaskCount == 0 {
		req.TaskCount = defaultTaskCount
	}
	if err := validation.Struct(req); err != nil {
		return SuggestResponse{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	prompt := strings.TrimSpace(req.Prompt)

	key := fmt.Sprintf("suggest|%s|%d", prompt, req.TaskCount)
	if cached, ok := s.cache.get(key); ok {
		aiRequestsTotal.WithLabelValues("suggest", "cache").Inc()
		return cached.(SuggestResponse), nil
	}

	// Collapse concurrent identical prompts into one backend call.
	v, err, _ := s.group.Do(key, func() (any, error) {
		suggestions, source := s.generateSuggestions(ctx, prompt, req.TaskCount)
		resp := SuggestResponse{
			Success:     true,
			Suggestions: sanitizeSuggestions(suggestions),
			Source:      source,
		}
		if source == SourceAI {
			s.cache.put(key, resp, s.cfg.SuggestTTL)
		}
		aiRequestsTotal.WithLabelValues("suggest", source).Inc()
		return resp, nil
	})
	if err != nil {
		return SuggestResponse{}, err
	}
	return v.(SuggestResponse), nil
}

func (s *service) Summarize(ctx context.Context, req SummarizeRequest) (SummarizeResponse, error) {
	if req.MaxLength == 0 {
		req.MaxLength = 100
	}
	if err := validation.Struct(req); err != nil {
		return SummarizeResponse{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	// Long inputs share a prefix key, matching the cache granularity
	// the summary budget makes meaningful.
	prefix := req.Text
	if len(prefix) > 50 {
		prefix = prefix[:50]
	}
	key := fmt.Sprintf("summary|%s|%d", prefix, req.MaxLength)
	if cached, ok := s.cache.get(key); ok {
		aiRequestsTotal.WithLabelValues("summarize", "cache").Inc()
		return cached.(SummarizeResponse), nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		summary, source := s.generateSummary(ctx, req.Text, req.MaxLength)
		summary = validation.SanitizeOutput(summary)
		resp := SummarizeResponse{
			Success:        true,
			Summary:        summary,
			OriginalLength: len(req.Text),
			SummaryLength:  len(summary),
			Source:         source,
		}
		if source == SourceAI {
			s.cache.put(key, resp, s.cfg.SummaryTTL)
		}
		aiRequestsTotal.WithLabelValues("summarize", source).Inc()
		return resp, nil
	})
	if err != nil {
		return SummarizeResponse{}, err
	}
	return v.(SummarizeResponse), nil
}

// =============================================================================
// Generation
// =============================================================================

// generateSuggestions asks the backend for structured suggestions and
// falls back on any failure.
func (s *service) generateSuggestions(ctx context.Context, prompt string, count int) ([]TaskSuggestion, string) {
	if s.llm == nil {
		return FallbackSuggestions(prompt, count), SourceFallback
	}

	llmPrompt := buildSuggestPrompt(prompt, count)
	raw, err := s.llm.Generate(ctx, llmPrompt, GenerationParams{
		Temperature: floatPtr(0.7),
		MaxTokens:   intPtr(500),
	})
	if err != nil {
		s.logger.Warn("suggestion backend failed, using fallback",
			slog.String("error", err.Error()),
		)
		return FallbackSuggestions(prompt, count), SourceFallback
	}

	suggestions, err := parseSuggestions(raw, count)
	if err != nil {
		s.logger.Warn("unparseable suggestion response, using fallback",
			slog.String("error", err.Error()),
		)
		return FallbackSuggestions(prompt, count), SourceFallback
	}
	return suggestions, SourceAI
}

// generateSummary asks the backend for a summary and falls back to
// extractive summarization on any failure.
func (s *service) generateSummary(ctx context.Context, text string, maxLength int) (string, string) {
	if s.llm == nil {
		return FallbackSummary(text, maxLength), SourceFallback
	}

	prompt := fmt.Sprintf("Summarize the following text in approximately %d characters:\n\n%s", maxLength, text)
	raw, err := s.llm.Generate(ctx, prompt, GenerationParams{
		Temperature: floatPtr(0.3),
		MaxTokens:   intPtr(maxLength*6/5 + 1),
	})
	if err != nil {
		s.logger.Warn("summary backend failed, using fallback",
			slog.String("error", err.Error()),
		)
		return FallbackSummary(text, maxLength), SourceFallback
	}
	summary := strings.TrimSpace(raw)
	if summary == "" {
		return FallbackSummary(text, maxLength), SourceFallback
	}
	return summary, SourceAI
}

func buildSuggestPrompt(prompt string, count int) string {
	return fmt.Sprintf(`Generate %d task suggestions based on the user's request. Return a JSON array of objects with the following structure:
{
  "title": "Task title",
  "description": "Brief task description",
  "priority": "low|medium|high",
  "tags": ["tag1", "tag2"],
  "estimatedDuration": "e.g. 30 minutes"
}

User request: %s`, count, prompt)
}

var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// parseSuggestions extracts the first JSON array from model output.
// Models often wrap the array in prose or code fences.
func parseSuggestions(raw string, count int) ([]TaskSuggestion, error) {
	match := jsonArrayPattern.FindString(raw)
	if match == "" {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var suggestions []TaskSuggestion
	if err := json.Unmarshal([]byte(match), &suggestions); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	if len(suggestions) == 0 {
		return nil, fmt.Errorf("empty suggestion array")
	}
	if len(suggestions) > count {
		suggestions = suggestions[:count]
	}
	for i := range suggestions {
		if suggestions[i].Title == "" {
			return nil, fmt.Errorf("suggestion %d has no title", i)
		}
	}
	return suggestions, nil
}

// sanitizeSuggestions strips markup from every model-influenced field.
func sanitizeSuggestions(in []TaskSuggestion) []TaskSuggestion {
	out := make([]TaskSuggestion, len(in))
	for i, s := range in {
		out[i] = TaskSuggestion{
			Title:             validation.SanitizeOutput(s.Title),
			Description:       validation.SanitizeOutput(s.Description),
			Priority:          validation.SanitizeOutput(s.Priority),
			Tags:              validation.SanitizeAll(s.Tags),
			EstimatedDuration: validation.SanitizeOutput(s.EstimatedDuration),
		}
	}
	return out
}
