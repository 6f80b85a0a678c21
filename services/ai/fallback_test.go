// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackSuggestions(t *testing.T) {
	suggestions := FallbackSuggestions("organize the garage", 3)
	require.Len(t, suggestions, 3)

	assert.Equal(t, "Plan: organize the garage", suggestions[0].Title)
	assert.Equal(t, "medium", suggestions[0].Priority)
	assert.Equal(t, []string{"planning"}, suggestions[0].Tags)
	assert.Equal(t, "30 minutes", suggestions[0].EstimatedDuration)

	assert.Equal(t, "Research: organize the garage", suggestions[1].Title)
	assert.Equal(t, "low", suggestions[1].Priority)
	assert.Equal(t, []string{"research"}, suggestions[1].Tags)
	assert.Equal(t, "1 hour", suggestions[1].EstimatedDuration)

	assert.Equal(t, "Execute: organize the garage", suggestions[2].Title)
	assert.Equal(t, "high", suggestions[2].Priority)
	assert.Equal(t, []string{"action"}, suggestions[2].Tags)
	assert.Equal(t, "2 hours", suggestions[2].EstimatedDuration)
}

func TestFallbackSuggestionsCount(t *testing.T) {
	assert.Len(t, FallbackSuggestions("x", 1), 1)
	assert.Len(t, FallbackSuggestions("x", 2), 2)
	assert.Len(t, FallbackSuggestions("x", 5), 3, "only three templates exist")
}

func TestFallbackSummaryShortTextPassesThrough(t *testing.T) {
	assert.Equal(t, "short", FallbackSummary("short", 100))
	assert.Equal(t, "", FallbackSummary("", 100))
}

func TestFallbackSummaryTruncationBoundary(t *testing.T) {
	// The first sentence fits the 3-char budget; the rest do not,
	// and the ellipsis does not fit either.
	assert.Equal(t, "A", FallbackSummary("A. B. C.", 3))
}

func TestFallbackSummaryAccumulatesSentences(t *testing.T) {
	text := "First sentence here. Second sentence follows. Third one is never reached because the text is long enough to exceed the budget."
	got := FallbackSummary(text, 50)

	// Sentence punctuation is consumed by the boundary split.
	assert.Equal(t, "First sentence here Second sentence follows...", got)
	assert.LessOrEqual(t, len(got), 50)
}

func TestFallbackSummaryEllipsisWhenItFits(t *testing.T) {
	text := "Tiny one. " + strings.Repeat("x", 200)
	got := FallbackSummary(text, 50)
	assert.Equal(t, "Tiny one...", got)
}

func TestFallbackSummaryMixedPunctuation(t *testing.T) {
	text := "Really? Yes! Certainly. And this trailing clause pushes the text over the budget for sure, well beyond it."
	got := FallbackSummary(text, 30)
	assert.Equal(t, "Really Yes Certainly...", got)
}
