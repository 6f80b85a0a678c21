// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tasks implements the offline-first task repository and its
// HTTP surface.
//
// Reads prefer the remote store when it is reachable; its snapshot
// replaces the local collection so remote state is the source of truth.
// Writes always land locally first and enqueue a mutation for the
// reconciler, so every write succeeds regardless of connectivity.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskmate/taskmate/pkg/validation"
	"github.com/taskmate/taskmate/services/tasks/datatypes"
	"github.com/taskmate/taskmate/services/tasks/store"
	tasksync "github.com/taskmate/taskmate/services/tasks/sync"
)

// Remote is the read side of the remote task store.
// *remote.Client satisfies this; tests substitute fakes.
type Remote interface {
	Configured() bool
	GetTasks(ctx context.Context) ([]*datatypes.Task, error)
}

// Service is the task repository exposed to handlers and the CLI.
type Service interface {
	// ListTasks returns the task collection, refreshed from the
	// remote store when reachable, local otherwise.
	ListTasks(ctx context.Context) ([]*datatypes.Task, error)

	// GetTask returns one task from the local store.
	GetTask(ctx context.Context, id string) (*datatypes.Task, error)

	// CreateTask persists a new task locally and queues the remote
	// create. Never fails on remote unavailability.
	CreateTask(ctx context.Context, input datatypes.CreateTaskInput) (*datatypes.Task, error)

	// UpdateTask merges a partial update over the existing task.
	UpdateTask(ctx context.Context, input datatypes.UpdateTaskInput) (*datatypes.Task, error)

	// DeleteTask removes a task locally and queues the remote delete.
	// Deleting an unknown id is not an error.
	DeleteTask(ctx context.Context, id string) error

	// SyncStatus reports connectivity and queue depth.
	SyncStatus(ctx context.Context) (SyncStatusResponse, error)

	// SyncNow runs one reconciliation sweep immediately.
	SyncNow(ctx context.Context) (tasksync.Result, error)

	// DroppedMutations returns the mutations discarded after the
	// retry ceiling, oldest first, until acknowledged.
	DroppedMutations(ctx context.Context) ([]*datatypes.SyncItem, error)

	// AcknowledgeDrops clears the dropped mutation records.
	AcknowledgeDrops(ctx context.Context) error
}

// SyncStatusResponse is the payload of the sync status endpoint.
type SyncStatusResponse struct {
	Status tasksync.Status       `json:"status"`
	Online bool                  `json:"online"`
	Queue  datatypes.QueueStatus `json:"queue"`
}

// service is the concrete repository.
type service struct {
	store      *store.Store
	remote     Remote
	reconciler *tasksync.Reconciler
	monitor    *tasksync.Monitor
	logger     *slog.Logger
	now        func() time.Time
}

var _ Service = (*service)(nil)

// NewService creates the task repository.
//
// Inputs:
//
//	st - The local store. Required.
//	remote - The remote read client. Required (may be unconfigured).
//	reconciler - Drains the mutation queue. Required.
//	monitor - Connectivity monitor. Required.
//	logger - If nil, slog.Default() is used.
func NewService(st *store.Store, remote Remote, reconciler *tasksync.Reconciler, monitor *tasksync.Monitor, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		store:      st,
		remote:     remote,
		reconciler: reconciler,
		monitor:    monitor,
		logger:     logger.With(slog.String("component", "tasks")),
		now:        time.Now,
	}
}

func (s *service) ListTasks(ctx context.Context) ([]*datatypes.Task, error) {
	if s.remote.Configured() {
		if tasks, ok := s.refreshFromRemote(ctx); ok {
			return tasks, nil
		}
	}
	return s.store.GetAll(ctx)
}

// refreshFromRemote drains queued local writes, then installs the
// remote snapshot. Returns ok=false on any remote failure so the
// caller falls back to local data silently.
func (s *service) refreshFromRemote(ctx context.Context) ([]*datatypes.Task, bool) {
	if qs, err := s.store.QueueStatus(ctx); err == nil && qs.Pending+qs.Failed > 0 {
		// Push local writes first so the snapshot does not undo them.
		if _, err := s.reconciler.Sweep(ctx); err != nil && !errors.Is(err, tasksync.ErrSweepInProgress) {
			s.logger.Debug("pre-fetch sweep failed", slog.String("error", err.Error()))
		}
	}

	tasks, err := s.remote.GetTasks(ctx)
	if err != nil {
		s.logger.Debug("remote fetch failed, serving local tasks",
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if err := s.store.ReplaceAll(ctx, tasks); err != nil {
		s.logger.Warn("failed to cache remote snapshot", slog.String("error", err.Error()))
	}
	return tasks, true
}

func (s *service) GetTask(ctx context.Context, id string) (*datatypes.Task, error) {
	return s.store.Get(ctx, id)
}

func (s *service) CreateTask(ctx context.Context, input datatypes.CreateTaskInput) (*datatypes.Task, error) {
	if err := validation.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := s.now().UTC()
	task := &datatypes.Task{
		ID:          uuid.NewString(),
		Title:       input.Title,
		Description: input.Description,
		DueDate:     input.DueDate,
		Priority:    input.Priority,
		Tags:        input.Tags,
		Status:      datatypes.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		UserID:      input.UserID,
	}
	if task.Tags == nil {
		task.Tags = []string{}
	}

	if err := s.store.Put(ctx, task); err != nil {
		return nil, fmt.Errorf("store task: %w", err)
	}
	if err := s.enqueue(ctx, datatypes.ActionCreate, task, ""); err != nil {
		return nil, err
	}

	s.logger.Info("task created",
		slog.String("task_id", task.ID),
		slog.String("priority", string(task.Priority)),
	)
	return task, nil
}

func (s *service) UpdateTask(ctx context.Context, input datatypes.UpdateTaskInput) (*datatypes.Task, error) {
	if err := validation.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	existing, err := s.store.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	merged := input.ApplyTo(existing)
	merged.UpdatedAt = s.now().UTC()

	if err := s.store.Put(ctx, merged); err != nil {
		return nil, fmt.Errorf("store task: %w", err)
	}
	if err := s.enqueue(ctx, datatypes.ActionUpdate, merged, ""); err != nil {
		return nil, err
	}

	s.logger.Info("task updated", slog.String("task_id", merged.ID))
	return merged, nil
}

func (s *service) DeleteTask(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if err := s.enqueue(ctx, datatypes.ActionDelete, nil, id); err != nil {
		return err
	}

	s.logger.Info("task deleted", slog.String("task_id", id))
	return nil
}

func (s *service) SyncStatus(ctx context.Context) (SyncStatusResponse, error) {
	status, err := s.monitor.Status(ctx)
	if err != nil {
		return SyncStatusResponse{}, err
	}
	qs, err := s.store.QueueStatus(ctx)
	if err != nil {
		return SyncStatusResponse{}, err
	}
	return SyncStatusResponse{
		Status: status,
		Online: s.monitor.Online(),
		Queue:  qs,
	}, nil
}

func (s *service) SyncNow(ctx context.Context) (tasksync.Result, error) {
	return s.reconciler.Sweep(ctx)
}

func (s *service) DroppedMutations(ctx context.Context) ([]*datatypes.SyncItem, error) {
	return s.store.ListDropped(ctx)
}

func (s *service) AcknowledgeDrops(ctx context.Context) error {
	if err := s.store.ClearDropped(ctx); err != nil {
		return err
	}
	s.logger.Info("dropped mutations acknowledged")
	return nil
}

// enqueue appends one mutation to the queue and nudges the monitor so
// an online sweep happens promptly instead of at the next tick. With
// no remote configured the queue stays empty; local writes are final.
func (s *service) enqueue(ctx context.Context, action datatypes.SyncAction, task *datatypes.Task, taskID string) error {
	if !s.remote.Configured() {
		return nil
	}
	item := &datatypes.SyncItem{
		ID:             uuid.NewString(),
		Action:         action,
		TaskID:         taskID,
		EnqueuedAt:     s.now().UTC(),
		IdempotencyKey: uuid.NewString(),
	}
	if task != nil {
		item.Task = task.Clone()
	}
	if err := s.store.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("enqueue %s: %w", action, err)
	}

	if s.monitor.Online() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s.monitor.Check(ctx)
		}()
	}
	return nil
}
