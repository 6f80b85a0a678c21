// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ai

import (
	"regexp"
	"strings"
)

// FallbackSuggestions returns deterministic task suggestions derived
// from the prompt alone. Used whenever the LLM backend is unavailable
// or returns unparseable output.
func FallbackSuggestions(prompt string, count int) []TaskSuggestion {
	suggestions := []TaskSuggestion{
		{
			Title:             "Plan: " + prompt,
			Description:       "Break down the request into actionable steps",
			Priority:          "medium",
			Tags:              []string{"planning"},
			EstimatedDuration: "30 minutes",
		},
		{
			Title:             "Research: " + prompt,
			Description:       "Gather information and resources needed",
			Priority:          "low",
			Tags:              []string{"research"},
			EstimatedDuration: "1 hour",
		},
		{
			Title:             "Execute: " + prompt,
			Description:       "Take action on the main objective",
			Priority:          "high",
			Tags:              []string{"action"},
			EstimatedDuration: "2 hours",
		},
	}
	if count < len(suggestions) {
		suggestions = suggestions[:count]
	}
	return suggestions
}

var sentenceBoundary = regexp.MustCompile(`[.!?]+`)

// FallbackSummary produces an extractive summary: whole sentences are
// accumulated, oldest first, while they fit the character budget.
//
// The budget check counts each sentence fragment as split (including
// its leading whitespace) plus one separator character, so a sentence
// that would only fit after trimming is still excluded. An ellipsis is
// appended when text was dropped and it fits the budget.
func FallbackSummary(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}

	var summary strings.Builder
	for _, fragment := range sentenceBoundary.Split(text, -1) {
		if strings.TrimSpace(fragment) == "" {
			continue
		}
		if summary.Len()+len(fragment)+1 > maxLength {
			break
		}
		if summary.Len() > 0 {
			summary.WriteByte(' ')
		}
		summary.WriteString(strings.TrimSpace(fragment))
	}

	out := summary.String()
	if len(out) < len(text) && len(out)+3 <= maxLength {
		out += "..."
	}
	return out
}
