// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store provides the durable local task store backed by BadgerDB.
//
// BadgerDB gives us embedded, restart-surviving storage with low-latency
// access. The store holds two keyspaces in one database:
//
//	task/<id>  -> JSON-encoded Task
//	queue/<id> -> JSON-encoded SyncItem (pending remote mutation)
//
// All date-valued fields round-trip through JSON (RFC 3339 with sub-second
// precision), so a Task read back compares equal to the original at
// millisecond granularity.
//
// Initialization is lazy and idempotent: the first operation opens the
// database, and concurrent or repeated opens are no-ops. Operations after
// Close fail with ErrStoreClosed.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/taskmate/taskmate/services/tasks/datatypes"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrStoreClosed indicates an operation was attempted after Close.
	ErrStoreClosed = errors.New("store is closed")

	// ErrStoreNotOpen indicates the database failed to initialize.
	ErrStoreNotOpen = errors.New("store not open")

	// ErrTaskNotFound indicates the requested task id has no record.
	ErrTaskNotFound = errors.New("task not found")
)

// Key prefixes for the two keyspaces.
const (
	taskPrefix    = "task/"
	queuePrefix   = "queue/"
	droppedPrefix = "dropped/"
)

// =============================================================================
// Metrics
// =============================================================================

var (
	storeOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskmate_store_operations_total",
		Help: "Local store operations by type and status",
	}, []string{"operation", "status"})

	queueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskmate_sync_queue_depth",
		Help: "Number of pending mutations in the sync queue",
	})
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds configuration for the local store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true for persistent databases.
	SyncWrites bool

	// Logger is the logger for store operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults for a persistent store at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryConfig returns configuration optimized for testing.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// Store
// =============================================================================

// Store is the durable local store for tasks and the mutation queue.
//
// Thread Safety: Safe for concurrent use. BadgerDB serializes record
// access in its own transactions; the mutex only guards the open/close
// lifecycle.
type Store struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	db     *badger.DB
	closed bool
}

// New creates a store from the given configuration. The database is not
// opened until Open or the first operation.
//
// Outputs:
//
//	*Store - The store. Call Close() when done.
func New(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "store")),
	}
}

// Open initializes the underlying database.
//
// Description:
//
//	Opens BadgerDB at the configured path (creating the directory if
//	needed) or in memory. Calling Open on an already-open store is a
//	no-op. Every store operation calls Open lazily, so explicit calls
//	are only needed to surface initialization errors early.
//
// Outputs:
//
//	error - Non-nil if the path is invalid or the database cannot open.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if s.db != nil {
		return nil
	}

	if !s.cfg.InMemory && s.cfg.Path == "" {
		return fmt.Errorf("%w: path is required for persistent store", ErrStoreNotOpen)
	}

	var opts badger.Options
	if s.cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(s.cfg.Path, 0750); err != nil {
			return fmt.Errorf("create store directory %s: %w", s.cfg.Path, err)
		}
		opts = badger.DefaultOptions(s.cfg.Path)
	}
	opts = opts.WithSyncWrites(s.cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if s.cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: s.logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreNotOpen, err)
	}
	s.db = db

	s.logger.Info("local store opened",
		slog.String("path", s.cfg.Path),
		slog.Bool("in_memory", s.cfg.InMemory),
	)
	return nil
}

// ensureOpen lazily opens the database and returns the handle.
func (s *Store) ensureOpen() (*badger.DB, error) {
	if err := s.Open(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.db == nil {
		return nil, ErrStoreClosed
	}
	return s.db, nil
}

// Close closes the database. Safe to call multiple times.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// =============================================================================
// Task Operations
// =============================================================================

// GetAll returns every task in the store, sorted by creation time
// ascending for a stable order across calls.
func (s *Store) GetAll(ctx context.Context) ([]*datatypes.Task, error) {
	db, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tasks []*datatypes.Task
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(taskPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var task datatypes.Task
				if err := json.Unmarshal(val, &task); err != nil {
					return fmt.Errorf("decode task %s: %w", it.Item().Key(), err)
				}
				tasks = append(tasks, &task)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		storeOperationsTotal.WithLabelValues("get_all", "error").Inc()
		return nil, err
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	storeOperationsTotal.WithLabelValues("get_all", "success").Inc()
	return tasks, nil
}

// Get returns the task with the given id, or ErrTaskNotFound.
func (s *Store) Get(ctx context.Context, id string) (*datatypes.Task, error) {
	db, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var task datatypes.Task
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(taskPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrTaskNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &task)
		})
	})
	if err != nil {
		status := "error"
		if errors.Is(err, ErrTaskNotFound) {
			status = "miss"
		}
		storeOperationsTotal.WithLabelValues("get", status).Inc()
		return nil, err
	}
	storeOperationsTotal.WithLabelValues("get", "success").Inc()
	return &task, nil
}

// Put upserts a task record.
func (s *Store) Put(ctx context.Context, task *datatypes.Task) error {
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.ID, err)
	}
	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(taskPrefix+task.ID), data)
	})
	if err != nil {
		storeOperationsTotal.WithLabelValues("put", "error").Inc()
		return fmt.Errorf("put task %s: %w", task.ID, err)
	}
	storeOperationsTotal.WithLabelValues("put", "success").Inc()
	return nil
}

// Delete removes a task record. Deleting an absent id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(taskPrefix + id))
	})
	if err != nil {
		storeOperationsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	storeOperationsTotal.WithLabelValues("delete", "success").Inc()
	return nil
}

// ReplaceAll overwrites the task collection with a remote snapshot.
//
// Description:
//
//	Clears every task record and inserts the given tasks in a single
//	read-write transaction, so readers never observe the half-cleared
//	state. The mutation queue is untouched.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	tasks - The snapshot to install. May be empty.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) ReplaceAll(ctx context.Context, tasks []*datatypes.Task) error {
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		prefix := []byte(taskPrefix)
		var stale [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for _, task := range tasks {
			data, err := json.Marshal(task)
			if err != nil {
				return fmt.Errorf("encode task %s: %w", task.ID, err)
			}
			if err := txn.Set([]byte(taskPrefix+task.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		storeOperationsTotal.WithLabelValues("replace_all", "error").Inc()
		return fmt.Errorf("replace tasks: %w", err)
	}
	storeOperationsTotal.WithLabelValues("replace_all", "success").Inc()
	return nil
}

// =============================================================================
// Mutation Queue Operations
// =============================================================================

// Enqueue upserts a queue item. Used both for new mutations and for
// re-persisting an item with a bumped retry count.
func (s *Store) Enqueue(ctx context.Context, item *datatypes.SyncItem) error {
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode queue item %s: %w", item.ID, err)
	}
	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(queuePrefix+item.ID), data)
	})
	if err != nil {
		storeOperationsTotal.WithLabelValues("enqueue", "error").Inc()
		return fmt.Errorf("enqueue %s: %w", item.ID, err)
	}
	storeOperationsTotal.WithLabelValues("enqueue", "success").Inc()
	s.refreshQueueDepth(db)
	return nil
}

// Dequeue removes a queue item by id. Removing an absent id is a no-op.
func (s *Store) Dequeue(ctx context.Context, id string) error {
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(queuePrefix + id))
	})
	if err != nil {
		storeOperationsTotal.WithLabelValues("dequeue", "error").Inc()
		return fmt.Errorf("dequeue %s: %w", id, err)
	}
	storeOperationsTotal.WithLabelValues("dequeue", "success").Inc()
	s.refreshQueueDepth(db)
	return nil
}

// ListQueue returns all queue items sorted ascending by enqueue time
// (oldest first), the order the reconciler applies them in.
func (s *Store) ListQueue(ctx context.Context) ([]*datatypes.SyncItem, error) {
	db, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var items []*datatypes.SyncItem
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(queuePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var item datatypes.SyncItem
				if err := json.Unmarshal(val, &item); err != nil {
					return fmt.Errorf("decode queue item %s: %w", it.Item().Key(), err)
				}
				items = append(items, &item)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		storeOperationsTotal.WithLabelValues("list_queue", "error").Inc()
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].EnqueuedAt.Before(items[j].EnqueuedAt)
	})
	storeOperationsTotal.WithLabelValues("list_queue", "success").Inc()
	return items, nil
}

// ClearQueue removes every queue item.
func (s *Store) ClearQueue(ctx context.Context) error {
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		prefix := []byte(queuePrefix)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		storeOperationsTotal.WithLabelValues("clear_queue", "error").Inc()
		return fmt.Errorf("clear queue: %w", err)
	}
	storeOperationsTotal.WithLabelValues("clear_queue", "success").Inc()
	queueDepthGauge.Set(0)
	return nil
}

// QueueStatus summarizes the queue: pending (never attempted), failed
// (attempted at least once, still queued), and dropped (discarded
// after the retry ceiling, awaiting acknowledgment).
func (s *Store) QueueStatus(ctx context.Context) (datatypes.QueueStatus, error) {
	items, err := s.ListQueue(ctx)
	if err != nil {
		return datatypes.QueueStatus{}, err
	}
	var status datatypes.QueueStatus
	for _, item := range items {
		if item.RetryCount == 0 {
			status.Pending++
		} else {
			status.Failed++
		}
	}

	dropped, err := s.ListDropped(ctx)
	if err != nil {
		return datatypes.QueueStatus{}, err
	}
	status.Dropped = len(dropped)
	return status, nil
}

// =============================================================================
// Dropped Mutation Records
// =============================================================================

// MarkDropped durably records a mutation discarded after exhausting
// its retry budget. Records persist across restarts until acknowledged
// with ClearDropped, so a repeatedly-failing mutation is never lost
// silently.
func (s *Store) MarkDropped(ctx context.Context, item *datatypes.SyncItem) error {
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode dropped item %s: %w", item.ID, err)
	}
	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(droppedPrefix+item.ID), data)
	})
	if err != nil {
		storeOperationsTotal.WithLabelValues("mark_dropped", "error").Inc()
		return fmt.Errorf("mark dropped %s: %w", item.ID, err)
	}
	storeOperationsTotal.WithLabelValues("mark_dropped", "success").Inc()
	return nil
}

// ListDropped returns all dropped mutation records, oldest first.
func (s *Store) ListDropped(ctx context.Context) ([]*datatypes.SyncItem, error) {
	db, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var items []*datatypes.SyncItem
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(droppedPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var item datatypes.SyncItem
				if err := json.Unmarshal(val, &item); err != nil {
					return fmt.Errorf("decode dropped item %s: %w", it.Item().Key(), err)
				}
				items = append(items, &item)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		storeOperationsTotal.WithLabelValues("list_dropped", "error").Inc()
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].EnqueuedAt.Before(items[j].EnqueuedAt)
	})
	storeOperationsTotal.WithLabelValues("list_dropped", "success").Inc()
	return items, nil
}

// ClearDropped acknowledges and removes every dropped mutation record.
func (s *Store) ClearDropped(ctx context.Context) error {
	db, err := s.ensureOpen()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		prefix := []byte(droppedPrefix)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		storeOperationsTotal.WithLabelValues("clear_dropped", "error").Inc()
		return fmt.Errorf("clear dropped: %w", err)
	}
	storeOperationsTotal.WithLabelValues("clear_dropped", "success").Inc()
	return nil
}

// refreshQueueDepth updates the queue depth gauge. Best effort only.
func (s *Store) refreshQueueDepth(db *badger.DB) {
	var depth int
	_ = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()
		prefix := []byte(queuePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			depth++
		}
		return nil
	})
	queueDepthGauge.Set(float64(depth))
}

// =============================================================================
// Test Helpers
// =============================================================================

// TempDir creates a temporary directory for testing persistent stores.
func TempDir(prefix string) (string, error) {
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	return dir, nil
}

// TruncateMillis truncates a time to the millisecond precision the
// store's round-trip contract guarantees. Test helper.
func TruncateMillis(t time.Time) time.Time {
	return t.Truncate(time.Millisecond)
}
