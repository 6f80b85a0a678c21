// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sync reconciles locally-queued task mutations with the remote
// store and tracks connectivity.
//
// The reconciler drains the mutation queue oldest-first. A mutation that
// fails gets its retry count bumped and stays queued; once the count
// reaches the ceiling the item is dropped at the start of the next sweep,
// and the drop is surfaced in the sweep result rather than discarded
// silently.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/taskmate/taskmate/services/tasks/datatypes"
	"github.com/taskmate/taskmate/services/tasks/store"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrSweepInProgress indicates a concurrent sweep holds the drain lock.
	ErrSweepInProgress = errors.New("sweep already in progress")

	// ErrMalformedQueueItem indicates a queue item that cannot be applied
	// (e.g. a create with no task payload). Such items are dropped.
	ErrMalformedQueueItem = errors.New("malformed queue item")
)

var tracer = otel.Tracer("taskmate.sync")

// =============================================================================
// Metrics
// =============================================================================

var (
	sweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskmate_sync_sweeps_total",
		Help: "Reconciliation sweeps by outcome",
	}, []string{"status"})

	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskmate_sync_mutations_total",
		Help: "Queued mutations applied to the remote store",
	}, []string{"action", "status"})

	dropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskmate_sync_drops_total",
		Help: "Queue items dropped after exhausting their retry budget",
	})
)

// =============================================================================
// Remote Applier
// =============================================================================

// Applier applies a single mutation to the remote store.
// *remote.Client satisfies this; tests substitute fakes.
type Applier interface {
	CreateTask(ctx context.Context, task *datatypes.Task, idempotencyKey string) error
	UpdateTask(ctx context.Context, task *datatypes.Task) error
	DeleteTask(ctx context.Context, id string) error
}

// =============================================================================
// Reconciler
// =============================================================================

// Result summarizes one sweep of the mutation queue.
type Result struct {
	// Applied is the count of mutations the remote store accepted.
	Applied int `json:"applied"`

	// Failed is the count of mutations that failed and remain queued
	// with a bumped retry count.
	Failed int `json:"failed"`

	// Dropped lists the ids of queue items discarded this sweep after
	// exhausting their retry budget. Empty when nothing was dropped.
	Dropped []string `json:"dropped,omitempty"`
}

// Reconciler drains the mutation queue against the remote store.
//
// Thread Safety: Safe for concurrent use. Sweeps are serialized; a
// Sweep call while another is running returns ErrSweepInProgress.
type Reconciler struct {
	store  *store.Store
	remote Applier
	logger *slog.Logger

	sweepCh chan struct{} // 1-slot token serializing sweeps
}

// NewReconciler creates a reconciler over the given store and remote.
func NewReconciler(st *store.Store, remote Applier, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		store:   st,
		remote:  remote,
		logger:  logger.With(slog.String("component", "reconciler")),
		sweepCh: make(chan struct{}, 1),
	}
	r.sweepCh <- struct{}{}
	return r
}

// Sweep drains the mutation queue once.
//
// Description:
//
//	Loads the full queue sorted by enqueue time, drops items that have
//	already exhausted their retry budget, then applies the rest in
//	order. A successful application removes the item; a failure bumps
//	its retry count and re-persists it, leaving it for the next sweep.
//	The sweep itself succeeds even when individual mutations fail;
//	only store access errors fail the sweep.
//
// Outputs:
//
//	Result - Counts of applied and failed mutations plus the ids of
//	         any items dropped this sweep.
//	error - ErrSweepInProgress, a context error, or a store failure.
//
// Thread Safety: Safe for concurrent use; concurrent calls do not
// overlap.
func (r *Reconciler) Sweep(ctx context.Context) (Result, error) {
	select {
	case <-r.sweepCh:
		defer func() { r.sweepCh <- struct{}{} }()
	default:
		return Result{}, ErrSweepInProgress
	}

	ctx, span := tracer.Start(ctx, "sync.Sweep")
	defer span.End()

	items, err := r.store.ListQueue(ctx)
	if err != nil {
		sweepsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "queue read failed")
		return Result{}, fmt.Errorf("list queue: %w", err)
	}

	var result Result
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if item.Exhausted() {
			if err := r.drop(ctx, item); err != nil {
				sweepsTotal.WithLabelValues("error").Inc()
				return result, err
			}
			result.Dropped = append(result.Dropped, item.ID)
			continue
		}

		if err := r.apply(ctx, item); err != nil {
			if errors.Is(err, ErrMalformedQueueItem) {
				if dropErr := r.drop(ctx, item); dropErr != nil {
					return result, dropErr
				}
				result.Dropped = append(result.Dropped, item.ID)
				continue
			}
			item.RetryCount++
			if persistErr := r.store.Enqueue(ctx, item); persistErr != nil {
				sweepsTotal.WithLabelValues("error").Inc()
				return result, fmt.Errorf("persist retry for %s: %w", item.ID, persistErr)
			}
			result.Failed++
			mutationsTotal.WithLabelValues(string(item.Action), "failure").Inc()
			r.logger.Warn("queued mutation failed",
				slog.String("item_id", item.ID),
				slog.String("action", string(item.Action)),
				slog.String("task_id", item.TargetTaskID()),
				slog.Int("retry_count", item.RetryCount),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := r.store.Dequeue(ctx, item.ID); err != nil {
			sweepsTotal.WithLabelValues("error").Inc()
			return result, fmt.Errorf("dequeue %s: %w", item.ID, err)
		}
		result.Applied++
		mutationsTotal.WithLabelValues(string(item.Action), "success").Inc()
	}

	span.SetAttributes(
		attribute.Int("applied", result.Applied),
		attribute.Int("failed", result.Failed),
		attribute.Int("dropped", len(result.Dropped)),
	)
	sweepsTotal.WithLabelValues("success").Inc()
	r.logger.Info("sweep complete",
		slog.Int("applied", result.Applied),
		slog.Int("failed", result.Failed),
		slog.Int("dropped", len(result.Dropped)),
	)
	return result, nil
}

// apply pushes one mutation to the remote store.
func (r *Reconciler) apply(ctx context.Context, item *datatypes.SyncItem) error {
	switch item.Action {
	case datatypes.ActionCreate:
		if item.Task == nil {
			return fmt.Errorf("%w: create item %s has no task payload", ErrMalformedQueueItem, item.ID)
		}
		return r.remote.CreateTask(ctx, item.Task, item.IdempotencyKey)
	case datatypes.ActionUpdate:
		if item.Task == nil {
			return fmt.Errorf("%w: update item %s has no task payload", ErrMalformedQueueItem, item.ID)
		}
		return r.remote.UpdateTask(ctx, item.Task)
	case datatypes.ActionDelete:
		if item.TargetTaskID() == "" {
			return fmt.Errorf("%w: delete item %s has no task id", ErrMalformedQueueItem, item.ID)
		}
		return r.remote.DeleteTask(ctx, item.TargetTaskID())
	default:
		return fmt.Errorf("%w: unknown action %q on item %s", ErrMalformedQueueItem, item.Action, item.ID)
	}
}

// drop removes an unapplyable queue item and surfaces the loss: the
// item moves to the durable dropped keyspace (reported by the sync
// status endpoint until acknowledged), the drops counter increments,
// and the loss is logged at error level.
func (r *Reconciler) drop(ctx context.Context, item *datatypes.SyncItem) error {
	if err := r.store.MarkDropped(ctx, item); err != nil {
		return fmt.Errorf("drop %s: %w", item.ID, err)
	}
	if err := r.store.Dequeue(ctx, item.ID); err != nil {
		return fmt.Errorf("drop %s: %w", item.ID, err)
	}
	dropsTotal.Inc()
	r.logger.Error("dropping queued mutation",
		slog.String("item_id", item.ID),
		slog.String("action", string(item.Action)),
		slog.String("task_id", item.TargetTaskID()),
		slog.Int("retry_count", item.RetryCount),
	)
	return nil
}
