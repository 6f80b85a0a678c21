// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmate/taskmate/services/tasks/datatypes"
	"github.com/taskmate/taskmate/services/tasks/store"
)

// appliedCall records one remote call made by the reconciler.
type appliedCall struct {
	action         datatypes.SyncAction
	taskID         string
	idempotencyKey string
}

// fakeApplier applies mutations in memory, failing task ids listed in
// failing.
type fakeApplier struct {
	calls   []appliedCall
	failing map[string]error
}

func (f *fakeApplier) failFor(taskID string) error {
	if f.failing == nil {
		return nil
	}
	return f.failing[taskID]
}

func (f *fakeApplier) CreateTask(_ context.Context, task *datatypes.Task, key string) error {
	f.calls = append(f.calls, appliedCall{datatypes.ActionCreate, task.ID, key})
	return f.failFor(task.ID)
}

func (f *fakeApplier) UpdateTask(_ context.Context, task *datatypes.Task) error {
	f.calls = append(f.calls, appliedCall{action: datatypes.ActionUpdate, taskID: task.ID})
	return f.failFor(task.ID)
}

func (f *fakeApplier) DeleteTask(_ context.Context, id string) error {
	f.calls = append(f.calls, appliedCall{action: datatypes.ActionDelete, taskID: id})
	return f.failFor(id)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(store.InMemoryConfig())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func queuedCreate(t *testing.T, s *store.Store, itemID, taskID string, enqueuedAt time.Time, retries int) {
	t.Helper()
	err := s.Enqueue(context.Background(), &datatypes.SyncItem{
		ID:     itemID,
		Action: datatypes.ActionCreate,
		Task: &datatypes.Task{
			ID:        taskID,
			Title:     "queued " + taskID,
			Priority:  datatypes.PriorityMedium,
			Tags:      []string{},
			Status:    datatypes.StatusPending,
			CreatedAt: enqueuedAt,
			UpdatedAt: enqueuedAt,
		},
		EnqueuedAt:     enqueuedAt,
		RetryCount:     retries,
		IdempotencyKey: "idem-" + itemID,
	})
	require.NoError(t, err)
}

func TestSweepAppliesOldestFirst(t *testing.T) {
	s := newTestStore(t)
	applier := &fakeApplier{}
	r := NewReconciler(s, applier, nil)

	base := time.Now().UTC()
	queuedCreate(t, s, "q2", "t2", base.Add(time.Second), 0)
	queuedCreate(t, s, "q1", "t1", base, 0)
	queuedCreate(t, s, "q3", "t3", base.Add(2*time.Second), 0)

	result, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Applied)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.Dropped)

	require.Len(t, applier.calls, 3)
	assert.Equal(t, "t1", applier.calls[0].taskID)
	assert.Equal(t, "t2", applier.calls[1].taskID)
	assert.Equal(t, "t3", applier.calls[2].taskID)
	assert.Equal(t, "idem-q1", applier.calls[0].idempotencyKey)

	items, err := s.ListQueue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSweepRetriesAndDrops(t *testing.T) {
	s := newTestStore(t)
	applier := &fakeApplier{failing: map[string]error{
		"t-bad": errors.New("remote rejected write"),
	}}
	r := NewReconciler(s, applier, nil)
	ctx := context.Background()

	base := time.Now().UTC()
	queuedCreate(t, s, "q-ok", "t-ok", base, 0)
	queuedCreate(t, s, "q-bad", "t-bad", base.Add(time.Second), 2)

	// First sweep: the healthy item applies, the failing one reaches
	// its final retry and stays queued.
	result, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Failed)
	assert.Empty(t, result.Dropped)

	items, err := s.ListQueue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "q-bad", items[0].ID)
	assert.Equal(t, datatypes.MaxSyncRetries, items[0].RetryCount)

	// Second sweep: the exhausted item is dropped without another
	// remote attempt, and the drop is surfaced.
	callsBefore := len(applier.calls)
	result, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Applied)
	assert.Zero(t, result.Failed)
	assert.Equal(t, []string{"q-bad"}, result.Dropped)
	assert.Len(t, applier.calls, callsBefore)

	items, err = s.ListQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	// The loss is durably recorded for later acknowledgment.
	dropped, err := s.ListDropped(ctx)
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	assert.Equal(t, "q-bad", dropped[0].ID)
}

func TestSweepAppliesEachActionKind(t *testing.T) {
	s := newTestStore(t)
	applier := &fakeApplier{}
	r := NewReconciler(s, applier, nil)
	ctx := context.Background()

	base := time.Now().UTC()
	queuedCreate(t, s, "q1", "t1", base, 0)
	require.NoError(t, s.Enqueue(ctx, &datatypes.SyncItem{
		ID:     "q2",
		Action: datatypes.ActionUpdate,
		Task: &datatypes.Task{
			ID: "t2", Title: "renamed", Priority: datatypes.PriorityLow,
			Tags: []string{}, Status: datatypes.StatusCompleted,
			CreatedAt: base, UpdatedAt: base,
		},
		EnqueuedAt: base.Add(time.Second),
	}))
	require.NoError(t, s.Enqueue(ctx, &datatypes.SyncItem{
		ID:         "q3",
		Action:     datatypes.ActionDelete,
		TaskID:     "t3",
		EnqueuedAt: base.Add(2 * time.Second),
	}))

	result, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Applied)

	require.Len(t, applier.calls, 3)
	assert.Equal(t, datatypes.ActionCreate, applier.calls[0].action)
	assert.Equal(t, datatypes.ActionUpdate, applier.calls[1].action)
	assert.Equal(t, datatypes.ActionDelete, applier.calls[2].action)
	assert.Equal(t, "t3", applier.calls[2].taskID)
}

func TestSweepDropsMalformedItems(t *testing.T) {
	s := newTestStore(t)
	applier := &fakeApplier{}
	r := NewReconciler(s, applier, nil)
	ctx := context.Background()

	// A create with no payload can never be applied.
	require.NoError(t, s.Enqueue(ctx, &datatypes.SyncItem{
		ID:         "q-broken",
		Action:     datatypes.ActionCreate,
		EnqueuedAt: time.Now().UTC(),
	}))

	result, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"q-broken"}, result.Dropped)
	assert.Empty(t, applier.calls)

	items, err := s.ListQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSweepEmptyQueue(t *testing.T) {
	s := newTestStore(t)
	r := NewReconciler(s, &fakeApplier{}, nil)

	result, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Applied)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.Dropped)
}

func TestSweepsSerialized(t *testing.T) {
	s := newTestStore(t)
	r := NewReconciler(s, &fakeApplier{}, nil)

	// Hold the drain token to simulate an in-flight sweep.
	<-r.sweepCh
	_, err := r.Sweep(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)
	r.sweepCh <- struct{}{}

	_, err = r.Sweep(context.Background())
	assert.NoError(t, err)
}

func TestMonitorStatusTransitions(t *testing.T) {
	s := newTestStore(t)
	applier := &fakeApplier{}
	r := NewReconciler(s, applier, nil)
	ctx := context.Background()

	probeErr := error(errors.New("connection refused"))
	probe := func(context.Context) error { return probeErr }
	m := NewMonitor(DefaultMonitorConfig(probe), s, r)

	// Offline: the probe fails.
	assert.False(t, m.Check(ctx))
	status, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, status)

	// Queue a mutation while offline.
	queuedCreate(t, s, "q1", "t1", time.Now().UTC(), 0)

	// Back online: the transition drains the queue.
	probeErr = nil
	assert.True(t, m.Check(ctx))
	require.Len(t, applier.calls, 1)
	assert.Equal(t, "t1", applier.calls[0].taskID)

	status, err = m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, status)
}

func TestMonitorSyncingStatusWithQueuedWork(t *testing.T) {
	s := newTestStore(t)
	failing := &fakeApplier{failing: map[string]error{"t1": errors.New("boom")}}
	r := NewReconciler(s, failing, nil)
	ctx := context.Background()

	m := NewMonitor(DefaultMonitorConfig(func(context.Context) error { return nil }), s, r)
	queuedCreate(t, s, "q1", "t1", time.Now().UTC(), 0)

	// Probe succeeds but the mutation keeps failing, so work remains.
	assert.True(t, m.Check(ctx))
	status, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSyncing, status)
}

func TestMonitorStartStop(t *testing.T) {
	s := newTestStore(t)
	r := NewReconciler(s, &fakeApplier{}, nil)

	probed := make(chan struct{}, 16)
	cfg := MonitorConfig{
		Interval:     10 * time.Millisecond,
		ProbeTimeout: time.Second,
		Probe: func(context.Context) error {
			select {
			case probed <- struct{}{}:
			default:
			}
			return nil
		},
	}
	m := NewMonitor(cfg, s, r)
	m.Start(context.Background())

	select {
	case <-probed:
	case <-time.After(2 * time.Second):
		t.Fatal("no probe within deadline")
	}
	m.Stop()
	assert.True(t, m.Online())
}
