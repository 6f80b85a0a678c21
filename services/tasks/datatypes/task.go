// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the core task domain types shared by the
// store, remote client, sync engine, and HTTP layer.
//
// A Task is always owned by the local store; the remote store only ever
// receives snapshots of it. Mutations travel as SyncItem records through
// the mutation queue until they are acknowledged remotely or exhausted.
package datatypes

import (
	"time"
)

// =============================================================================
// Enumerations
// =============================================================================

// Priority is the urgency level of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in-progress"
	StatusCompleted  TaskStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// SyncAction is the kind of remote mutation a queue item carries.
type SyncAction string

const (
	ActionCreate SyncAction = "create"
	ActionUpdate SyncAction = "update"
	ActionDelete SyncAction = "delete"
)

// Valid reports whether a is one of the known actions.
func (a SyncAction) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

// =============================================================================
// Task
// =============================================================================

// Task is a single task record.
//
// Invariants:
//   - ID is immutable once assigned.
//   - Title is never empty after validation.
//   - UpdatedAt >= CreatedAt.
//   - Tags contains no duplicates (order is preserved).
type Task struct {
	// ID is an opaque unique identifier (UUID).
	ID string `json:"id"`

	// Title is the non-empty task title.
	Title string `json:"title"`

	// Description is optional free text.
	Description string `json:"description,omitempty"`

	// DueDate is the optional due instant.
	DueDate *time.Time `json:"dueDate,omitempty"`

	// Priority is one of low, medium, high.
	Priority Priority `json:"priority"`

	// Tags is an ordered, duplicate-free sequence of labels.
	Tags []string `json:"tags"`

	// Status is one of pending, in-progress, completed.
	Status TaskStatus `json:"status"`

	// CreatedAt is when the repository created the task.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is refreshed on every repository update.
	UpdatedAt time.Time `json:"updatedAt"`

	// UserID is the optional owning user.
	UserID string `json:"userId,omitempty"`
}

// Clone returns a deep copy of the task. The tag slice and due date are
// copied so mutations of the clone never alias the original.
func (t *Task) Clone() *Task {
	cp := *t
	if t.DueDate != nil {
		due := *t.DueDate
		cp.DueDate = &due
	}
	if t.Tags != nil {
		cp.Tags = make([]string, len(t.Tags))
		copy(cp.Tags, t.Tags)
	}
	return &cp
}

// =============================================================================
// Inputs
// =============================================================================

// CreateTaskInput is the caller-supplied shape for creating a task.
// The repository assigns ID, status, and timestamps.
type CreateTaskInput struct {
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    Priority   `json:"priority" validate:"required,oneof=low medium high"`
	Tags        []string   `json:"tags" validate:"unique"`
	UserID      string     `json:"userId,omitempty"`
}

// UpdateTaskInput is a partial update. Nil fields are left unchanged;
// the repository merges the rest over the existing record.
type UpdateTaskInput struct {
	ID          string      `json:"id" validate:"required"`
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	DueDate     *time.Time  `json:"dueDate,omitempty"`
	Priority    *Priority   `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Tags        []string    `json:"tags,omitempty" validate:"omitempty,unique"`
	Status      *TaskStatus `json:"status,omitempty" validate:"omitempty,oneof=pending in-progress completed"`
}

// ApplyTo merges the input over an existing task and returns the merged
// copy. UpdatedAt is NOT touched here; the repository owns timestamps.
func (in *UpdateTaskInput) ApplyTo(existing *Task) *Task {
	merged := existing.Clone()
	if in.Title != nil {
		merged.Title = *in.Title
	}
	if in.Description != nil {
		merged.Description = *in.Description
	}
	if in.DueDate != nil {
		due := *in.DueDate
		merged.DueDate = &due
	}
	if in.Priority != nil {
		merged.Priority = *in.Priority
	}
	if in.Tags != nil {
		merged.Tags = make([]string, len(in.Tags))
		copy(merged.Tags, in.Tags)
	}
	if in.Status != nil {
		merged.Status = *in.Status
	}
	return merged
}

// =============================================================================
// Mutation Queue
// =============================================================================

// MaxSyncRetries is the retry ceiling for a queue item. An item whose
// retry count reaches this value is evicted from the queue and surfaced
// through the sync status as exhausted.
const MaxSyncRetries = 3

// SyncItem is one pending remote mutation.
//
// Invariants:
//   - RetryCount only increases.
//   - Task is non-nil for create/update; TaskID carries the target for delete.
//   - IdempotencyKey is assigned once at enqueue time so a retried create
//     can be deduplicated by the remote wrapper.
type SyncItem struct {
	ID             string     `json:"id"`
	Action         SyncAction `json:"action"`
	Task           *Task      `json:"task,omitempty"`
	TaskID         string     `json:"taskId,omitempty"`
	EnqueuedAt     time.Time  `json:"enqueuedAt"`
	RetryCount     int        `json:"retryCount"`
	IdempotencyKey string     `json:"idempotencyKey"`
}

// TargetTaskID returns the id of the task this item mutates.
func (i *SyncItem) TargetTaskID() string {
	if i.Task != nil {
		return i.Task.ID
	}
	return i.TaskID
}

// Exhausted reports whether the item has hit the retry ceiling.
func (i *SyncItem) Exhausted() bool {
	return i.RetryCount >= MaxSyncRetries
}

// QueueStatus summarizes the mutation queue for the UI and status endpoint.
type QueueStatus struct {
	// Pending counts items never yet attempted (retryCount == 0).
	Pending int `json:"pending"`

	// Failed counts items with at least one failed attempt still queued.
	Failed int `json:"failed"`

	// Dropped counts mutations discarded after the retry ceiling that
	// have not yet been acknowledged.
	Dropped int `json:"dropped"`
}
