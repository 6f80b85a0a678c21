// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL    string
	taskPriority string
	taskDueDate  string
	taskTags     []string
	taskCount    int
	maxLength    int

	rootCmd = &cobra.Command{
		Use:   "taskmate",
		Short: "An offline-first task manager with background sync and AI helpers",
		Long: `TaskMate keeps your tasks in a local store, syncs them to a remote
store whenever connectivity allows, and proxies AI suggestion and
summary requests with deterministic fallbacks.`,
	}

	// --- Server ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the TaskMate HTTP server",
		Run:   runServe, // Defined in cmd_serve.go
	}

	// --- Task Management ---
	taskCmd = &cobra.Command{
		Use:   "task",
		Short: "Manage tasks against a running server",
	}
	taskListCmd = &cobra.Command{
		Use:   "list",
		Short: "List all tasks",
		Run:   runTaskList, // Defined in cmd_task.go
	}
	taskAddCmd = &cobra.Command{
		Use:   "add [title]",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		Run:   runTaskAdd, // Defined in cmd_task.go
	}
	taskDoneCmd = &cobra.Command{
		Use:   "done [id]",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		Run:   runTaskDone, // Defined in cmd_task.go
	}
	taskRmCmd = &cobra.Command{
		Use:   "rm [id]",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		Run:   runTaskRm, // Defined in cmd_task.go
	}
	syncStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and sync queue status",
		Run:   runSyncStatus, // Defined in cmd_task.go
	}
	syncNowCmd = &cobra.Command{
		Use:   "sync",
		Short: "Trigger an immediate reconciliation sweep",
		Run:   runSyncNow, // Defined in cmd_task.go
	}

	// --- AI Helpers ---
	suggestCmd = &cobra.Command{
		Use:   "suggest [prompt]",
		Short: "Generate task suggestions from a prompt",
		Args:  cobra.ExactArgs(1),
		Run:   runSuggest, // Defined in cmd_ai.go
	}
	summarizeCmd = &cobra.Command{
		Use:   "summarize [text]",
		Short: "Summarize text within a character budget",
		Args:  cobra.ExactArgs(1),
		Run:   runSummarize, // Defined in cmd_ai.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080",
		"Base URL of a running taskmate server")

	taskAddCmd.Flags().StringVar(&taskPriority, "priority", "medium",
		"Task priority: low, medium, high")
	taskAddCmd.Flags().StringVar(&taskDueDate, "due", "",
		"Due date in RFC 3339 form, e.g. 2025-07-01T12:00:00Z")
	taskAddCmd.Flags().StringSliceVar(&taskTags, "tags", nil,
		"Comma-separated task tags")

	suggestCmd.Flags().IntVar(&taskCount, "count", 3, "Number of suggestions (1-5)")
	summarizeCmd.Flags().IntVar(&maxLength, "max-length", 100, "Summary budget in characters (50-200)")

	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskDoneCmd)
	taskCmd.AddCommand(taskRmCmd)
	taskCmd.AddCommand(syncStatusCmd)
	taskCmd.AddCommand(syncNowCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(summarizeCmd)
}
