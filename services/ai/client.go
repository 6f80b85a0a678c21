// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ai proxies prompts to an LLM backend and degrades to
// deterministic local generation when the backend is unavailable.
//
// Two operations are exposed: task suggestion (prompt -> structured
// task list) and text summarization. Neither ever fails on backend
// unavailability; callers always get a usable response plus a source
// marker ("ai" or "fallback").
package ai

import "context"

// GenerationParams tunes a single LLM call. Nil fields use backend
// defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient is the interface any inference backend implements.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

func floatPtr(f float32) *float32 { return &f }
func intPtr(i int) *int           { return &i }
