// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

func runSuggest(cmd *cobra.Command, args []string) {
	payload := map[string]any{
		"prompt":    args[0],
		"taskCount": taskCount,
	}

	var resp struct {
		Suggestions []struct {
			Title             string   `json:"title"`
			Description       string   `json:"description"`
			Priority          string   `json:"priority"`
			Tags              []string `json:"tags"`
			EstimatedDuration string   `json:"estimatedDuration,omitempty"`
		} `json:"suggestions"`
		Source string `json:"source"`
	}
	if err := postJSON(serverURL+"/api/ai/suggest", payload, &resp); err != nil {
		log.Fatalf("Suggestion request failed: %v", err)
	}

	for i, s := range resp.Suggestions {
		fmt.Printf("%d. [%s] %s\n", i+1, s.Priority, s.Title)
		if s.Description != "" {
			fmt.Printf("   %s\n", s.Description)
		}
		if s.EstimatedDuration != "" {
			fmt.Printf("   estimated: %s\n", s.EstimatedDuration)
		}
	}
	if resp.Source == "fallback" {
		fmt.Println("(generated locally, no AI backend reachable)")
	}
}

func runSummarize(cmd *cobra.Command, args []string) {
	payload := map[string]any{
		"text":      args[0],
		"maxLength": maxLength,
	}

	var resp struct {
		Summary        string `json:"summary"`
		OriginalLength int    `json:"originalLength"`
		SummaryLength  int    `json:"summaryLength"`
		Source         string `json:"source"`
	}
	if err := postJSON(serverURL+"/api/ai/summarize", payload, &resp); err != nil {
		log.Fatalf("Summary request failed: %v", err)
	}

	fmt.Println(resp.Summary)
	fmt.Printf("(%d -> %d chars, source: %s)\n", resp.OriginalLength, resp.SummaryLength, resp.Source)
}
