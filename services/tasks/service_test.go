// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmate/taskmate/services/tasks/datatypes"
	"github.com/taskmate/taskmate/services/tasks/store"
	tasksync "github.com/taskmate/taskmate/services/tasks/sync"
)

// fakeRemote implements both the read side (Remote) and the write side
// (sync.Applier) of the remote store, in memory.
type fakeRemote struct {
	configured bool
	tasks      []*datatypes.Task
	fetchErr   error
	applyErr   error

	created []string
	updated []string
	deleted []string
}

func (f *fakeRemote) Configured() bool { return f.configured }

func (f *fakeRemote) GetTasks(context.Context) ([]*datatypes.Task, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.tasks, nil
}

func (f *fakeRemote) CreateTask(_ context.Context, task *datatypes.Task, _ string) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.created = append(f.created, task.ID)
	return nil
}

func (f *fakeRemote) UpdateTask(_ context.Context, task *datatypes.Task) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.updated = append(f.updated, task.ID)
	return nil
}

func (f *fakeRemote) DeleteTask(_ context.Context, id string) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fixture struct {
	store   *store.Store
	remote  *fakeRemote
	monitor *tasksync.Monitor
	svc     Service
}

func newFixture(t *testing.T, remote *fakeRemote) *fixture {
	t.Helper()
	st := store.New(store.InMemoryConfig())
	t.Cleanup(func() { _ = st.Close() })

	reconciler := tasksync.NewReconciler(st, remote, nil)
	monitor := tasksync.NewMonitor(
		tasksync.DefaultMonitorConfig(func(context.Context) error { return nil }),
		st, reconciler,
	)
	return &fixture{
		store:   st,
		remote:  remote,
		monitor: monitor,
		svc:     NewService(st, remote, reconciler, monitor, nil),
	}
}

func TestCreateTask(t *testing.T) {
	f := newFixture(t, &fakeRemote{configured: true})
	ctx := context.Background()

	due := time.Now().Add(24 * time.Hour).UTC()
	task, err := f.svc.CreateTask(ctx, datatypes.CreateTaskInput{
		Title:    "Buy groceries",
		Priority: datatypes.PriorityHigh,
		Tags:     []string{"errand"},
		DueDate:  &due,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, datatypes.StatusPending, task.Status)
	assert.True(t, task.CreatedAt.Equal(task.UpdatedAt), "new task timestamps must match")

	stored, err := f.store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Buy groceries", stored.Title)

	items, err := f.store.ListQueue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, datatypes.ActionCreate, items[0].Action)
	assert.NotEmpty(t, items[0].IdempotencyKey)
	assert.Equal(t, task.ID, items[0].TargetTaskID())
	assert.Zero(t, items[0].RetryCount)
}

func TestCreateTaskDefaultsTags(t *testing.T) {
	f := newFixture(t, &fakeRemote{configured: true})

	task, err := f.svc.CreateTask(context.Background(), datatypes.CreateTaskInput{
		Title:    "No tags",
		Priority: datatypes.PriorityLow,
	})
	require.NoError(t, err)
	assert.NotNil(t, task.Tags)
	assert.Empty(t, task.Tags)
}

func TestCreateTaskValidation(t *testing.T) {
	f := newFixture(t, &fakeRemote{configured: true})
	ctx := context.Background()

	_, err := f.svc.CreateTask(ctx, datatypes.CreateTaskInput{Priority: datatypes.PriorityLow})
	assert.ErrorIs(t, err, ErrInvalidInput, "missing title")

	_, err = f.svc.CreateTask(ctx, datatypes.CreateTaskInput{Title: "x", Priority: "urgent"})
	assert.ErrorIs(t, err, ErrInvalidInput, "unknown priority")
}

func TestUpdateTaskMerges(t *testing.T) {
	f := newFixture(t, &fakeRemote{configured: true})
	ctx := context.Background()

	task, err := f.svc.CreateTask(ctx, datatypes.CreateTaskInput{
		Title:       "Draft report",
		Description: "First pass",
		Priority:    datatypes.PriorityMedium,
		Tags:        []string{"work"},
	})
	require.NoError(t, err)

	newTitle := "Draft quarterly report"
	newStatus := datatypes.StatusInProgress
	updated, err := f.svc.UpdateTask(ctx, datatypes.UpdateTaskInput{
		ID:     task.ID,
		Title:  &newTitle,
		Status: &newStatus,
	})
	require.NoError(t, err)

	assert.Equal(t, newTitle, updated.Title)
	assert.Equal(t, newStatus, updated.Status)
	assert.Equal(t, "First pass", updated.Description, "untouched fields survive")
	assert.Equal(t, []string{"work"}, updated.Tags)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt) || updated.UpdatedAt.Equal(updated.CreatedAt))

	items, err := f.store.ListQueue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, datatypes.ActionUpdate, items[1].Action)
}

func TestUpdateMissingTask(t *testing.T) {
	f := newFixture(t, &fakeRemote{configured: true})

	title := "x"
	_, err := f.svc.UpdateTask(context.Background(), datatypes.UpdateTaskInput{
		ID:    "no-such-task",
		Title: &title,
	})
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestDeleteTask(t *testing.T) {
	f := newFixture(t, &fakeRemote{configured: true})
	ctx := context.Background()

	task, err := f.svc.CreateTask(ctx, datatypes.CreateTaskInput{
		Title:    "Ephemeral",
		Priority: datatypes.PriorityLow,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteTask(ctx, task.ID))

	_, err = f.svc.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	items, err := f.store.ListQueue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, datatypes.ActionDelete, items[1].Action)
	assert.Equal(t, task.ID, items[1].TargetTaskID())
}

func TestDeleteAbsentTask(t *testing.T) {
	f := newFixture(t, &fakeRemote{configured: true})
	ctx := context.Background()

	// Deleting an unknown id still queues the remote delete.
	require.NoError(t, f.svc.DeleteTask(ctx, "never-existed"))

	items, err := f.store.ListQueue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "never-existed", items[0].TargetTaskID())
}

func TestListTasksRemoteSnapshot(t *testing.T) {
	now := time.Now().UTC()
	remote := &fakeRemote{
		configured: true,
		tasks: []*datatypes.Task{
			{ID: "r1", Title: "remote one", Priority: datatypes.PriorityLow,
				Tags: []string{}, Status: datatypes.StatusPending, CreatedAt: now, UpdatedAt: now},
		},
	}
	f := newFixture(t, remote)
	ctx := context.Background()

	// Seed stale local data that the snapshot should replace.
	require.NoError(t, f.store.Put(ctx, &datatypes.Task{
		ID: "stale", Title: "old", Priority: datatypes.PriorityLow,
		Tags: []string{}, Status: datatypes.StatusPending, CreatedAt: now, UpdatedAt: now,
	}))

	tasks, err := f.svc.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "r1", tasks[0].ID)

	local, err := f.store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, "r1", local[0].ID)
}

func TestListTasksFallsBackToLocal(t *testing.T) {
	now := time.Now().UTC()
	remote := &fakeRemote{configured: true, fetchErr: errors.New("connection refused")}
	f := newFixture(t, remote)
	ctx := context.Background()

	require.NoError(t, f.store.Put(ctx, &datatypes.Task{
		ID: "local", Title: "cached", Priority: datatypes.PriorityLow,
		Tags: []string{}, Status: datatypes.StatusPending, CreatedAt: now, UpdatedAt: now,
	}))

	tasks, err := f.svc.ListTasks(ctx)
	require.NoError(t, err, "remote failure must not surface")
	require.Len(t, tasks, 1)
	assert.Equal(t, "local", tasks[0].ID)
}

func TestListTasksDrainsQueueBeforeSnapshot(t *testing.T) {
	remote := &fakeRemote{configured: true}
	f := newFixture(t, remote)
	ctx := context.Background()

	task, err := f.svc.CreateTask(ctx, datatypes.CreateTaskInput{
		Title:    "Created offline",
		Priority: datatypes.PriorityMedium,
	})
	require.NoError(t, err)

	// The queued create is pushed before the snapshot is fetched, so
	// the local write is not silently undone.
	_, err = f.svc.ListTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{task.ID}, remote.created)

	items, err := f.store.ListQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCreateTaskWithoutRemoteSkipsQueue(t *testing.T) {
	f := newFixture(t, &fakeRemote{})
	ctx := context.Background()

	_, err := f.svc.CreateTask(ctx, datatypes.CreateTaskInput{
		Title:    "Buy milk",
		Priority: datatypes.PriorityLow,
		Tags:     []string{},
	})
	require.NoError(t, err)

	tasks, err := f.store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Buy milk", tasks[0].Title)

	// Local writes are final when no remote store is configured.
	items, err := f.store.ListQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestListTasksUnconfiguredRemote(t *testing.T) {
	f := newFixture(t, &fakeRemote{})
	ctx := context.Background()

	task, err := f.svc.CreateTask(ctx, datatypes.CreateTaskInput{
		Title:    "Local only",
		Priority: datatypes.PriorityLow,
	})
	require.NoError(t, err)

	tasks, err := f.svc.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID, tasks[0].ID)
}

func TestSyncStatus(t *testing.T) {
	f := newFixture(t, &fakeRemote{configured: true})
	ctx := context.Background()

	// Before any probe the monitor reports offline.
	status, err := f.svc.SyncStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, tasksync.StatusOffline, status.Status)
	assert.False(t, status.Online)

	f.monitor.Check(ctx)
	status, err = f.svc.SyncStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, tasksync.StatusSynced, status.Status)
	assert.True(t, status.Online)
	assert.Zero(t, status.Queue.Pending)
}

func TestSyncNowSurfacesDrops(t *testing.T) {
	remote := &fakeRemote{configured: true, applyErr: errors.New("rejected")}
	f := newFixture(t, remote)
	ctx := context.Background()

	_, err := f.svc.CreateTask(ctx, datatypes.CreateTaskInput{
		Title:    "Doomed",
		Priority: datatypes.PriorityLow,
	})
	require.NoError(t, err)

	// Exhaust the retry budget.
	for i := 0; i < datatypes.MaxSyncRetries; i++ {
		result, err := f.svc.SyncNow(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Failed)
	}

	result, err := f.svc.SyncNow(ctx)
	require.NoError(t, err)
	assert.Len(t, result.Dropped, 1)

	status, err := f.svc.SyncStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Queue.Pending+status.Queue.Failed)
	assert.Equal(t, 1, status.Queue.Dropped)

	dropped, err := f.svc.DroppedMutations(ctx)
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	assert.Equal(t, datatypes.ActionCreate, dropped[0].Action)

	require.NoError(t, f.svc.AcknowledgeDrops(ctx))
	status, err = f.svc.SyncStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Queue.Dropped)
}
