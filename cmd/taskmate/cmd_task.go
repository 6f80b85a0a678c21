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
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

type taskJSON struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	DueDate     *string  `json:"dueDate,omitempty"`
	Priority    string   `json:"priority"`
	Tags        []string `json:"tags"`
	Status      string   `json:"status"`
}

type syncStatusJSON struct {
	Status string `json:"status"`
	Online bool   `json:"online"`
	Queue  struct {
		Pending int `json:"pending"`
		Failed  int `json:"failed"`
		Dropped int `json:"dropped"`
	} `json:"queue"`
}

func runTaskList(cmd *cobra.Command, args []string) {
	var listed []taskJSON
	if err := getJSON(serverURL+"/api/tasks", &listed); err != nil {
		log.Fatalf("Failed to list tasks: %v", err)
	}

	if len(listed) == 0 {
		fmt.Println("No tasks.")
		return
	}
	for _, task := range listed {
		marker := " "
		if task.Status == "completed" {
			marker = "x"
		}
		due := ""
		if task.DueDate != nil {
			due = "  due " + *task.DueDate
		}
		fmt.Printf("[%s] %-8s %s  (%s)%s\n", marker, task.Priority, task.Title, task.ID, due)
	}
}

func runTaskAdd(cmd *cobra.Command, args []string) {
	payload := map[string]any{
		"title":    args[0],
		"priority": taskPriority,
	}
	if len(taskTags) > 0 {
		payload["tags"] = taskTags
	}
	if taskDueDate != "" {
		if _, err := time.Parse(time.RFC3339, taskDueDate); err != nil {
			log.Fatalf("Invalid --due value %q: %v", taskDueDate, err)
		}
		payload["dueDate"] = taskDueDate
	}

	var created taskJSON
	if err := postJSON(serverURL+"/api/tasks", payload, &created); err != nil {
		log.Fatalf("Failed to create task: %v", err)
	}
	fmt.Printf("Created %s (%s)\n", created.Title, created.ID)
}

func runTaskDone(cmd *cobra.Command, args []string) {
	payload := map[string]any{"status": "completed"}
	var updated taskJSON
	if err := doJSON(http.MethodPatch, serverURL+"/api/tasks/"+args[0], payload, &updated); err != nil {
		log.Fatalf("Failed to complete task: %v", err)
	}
	fmt.Printf("Completed %s\n", updated.Title)
}

func runTaskRm(cmd *cobra.Command, args []string) {
	if err := doJSON(http.MethodDelete, serverURL+"/api/tasks/"+args[0], nil, nil); err != nil {
		log.Fatalf("Failed to delete task: %v", err)
	}
	fmt.Printf("Deleted %s\n", args[0])
}

func runSyncStatus(cmd *cobra.Command, args []string) {
	var status syncStatusJSON
	if err := getJSON(serverURL+"/api/tasks/sync/status", &status); err != nil {
		log.Fatalf("Failed to fetch sync status: %v", err)
	}

	fmt.Printf("Status:  %s\n", status.Status)
	fmt.Printf("Online:  %v\n", status.Online)
	fmt.Printf("Queue:   %d pending, %d failed\n", status.Queue.Pending, status.Queue.Failed)
	if status.Queue.Dropped > 0 {
		fmt.Printf("Dropped: %d mutations lost after the retry limit (see %s/api/tasks/sync/dropped)\n",
			status.Queue.Dropped, serverURL)
	}
}

func runSyncNow(cmd *cobra.Command, args []string) {
	var result struct {
		Applied int      `json:"applied"`
		Failed  int      `json:"failed"`
		Dropped []string `json:"dropped"`
	}
	if err := postJSON(serverURL+"/api/tasks/sync", nil, &result); err != nil {
		log.Fatalf("Sync failed: %v", err)
	}

	fmt.Printf("Applied: %d\n", result.Applied)
	fmt.Printf("Failed:  %d\n", result.Failed)
	if len(result.Dropped) > 0 {
		fmt.Printf("Dropped after retry limit: %v\n", result.Dropped)
	}
}
