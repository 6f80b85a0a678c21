// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/taskmate/taskmate/services/tasks/store"
)

// =============================================================================
// Connectivity Status
// =============================================================================

// Status describes the sync state exposed to clients.
type Status string

const (
	// StatusSynced means the remote is reachable and the queue is empty.
	StatusSynced Status = "synced"

	// StatusSyncing means the remote is reachable but queued mutations
	// remain (or a sweep is running).
	StatusSyncing Status = "syncing"

	// StatusOffline means the last probe failed.
	StatusOffline Status = "offline"
)

var onlineGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "taskmate_connectivity_online",
	Help: "1 when the last remote probe succeeded, 0 otherwise",
})

// =============================================================================
// Monitor
// =============================================================================

// ProbeFunc checks remote reachability. A nil error means online.
type ProbeFunc func(ctx context.Context) error

// MonitorConfig holds configuration for the connectivity monitor.
type MonitorConfig struct {
	// Interval between probes. Default: 30 seconds.
	Interval time.Duration

	// ProbeTimeout bounds a single probe. Default: 5 seconds.
	ProbeTimeout time.Duration

	// Probe checks reachability. Required.
	Probe ProbeFunc

	// Logger for monitor events. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// DefaultMonitorConfig returns production defaults around the probe.
func DefaultMonitorConfig(probe ProbeFunc) MonitorConfig {
	return MonitorConfig{
		Interval:     30 * time.Second,
		ProbeTimeout: 5 * time.Second,
		Probe:        probe,
	}
}

// Monitor probes the remote store on an interval and triggers a
// reconciliation sweep whenever connectivity transitions from offline
// to online, and on any online probe while mutations are queued.
//
// Thread Safety: Safe for concurrent use.
type Monitor struct {
	cfg        MonitorConfig
	store      *store.Store
	reconciler *Reconciler
	logger     *slog.Logger

	mu       sync.Mutex
	online   bool
	sweeping bool
	lastErr  error

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMonitor creates a connectivity monitor. Start must be called to
// begin probing.
func NewMonitor(cfg MonitorConfig, st *store.Store, reconciler *Reconciler) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:        cfg,
		store:      st,
		reconciler: reconciler,
		logger:     logger.With(slog.String("component", "connectivity")),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start launches the probe loop. The first probe runs immediately.
func (m *Monitor) Start(ctx context.Context) {
	go m.run(ctx)
}

// Stop terminates the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

// Online reports the result of the most recent probe.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Status derives the client-facing sync status from connectivity and
// queue depth.
func (m *Monitor) Status(ctx context.Context) (Status, error) {
	m.mu.Lock()
	online, sweeping := m.online, m.sweeping
	m.mu.Unlock()

	if !online {
		return StatusOffline, nil
	}
	if sweeping {
		return StatusSyncing, nil
	}
	qs, err := m.store.QueueStatus(ctx)
	if err != nil {
		return StatusOffline, err
	}
	if qs.Pending+qs.Failed > 0 {
		return StatusSyncing, nil
	}
	return StatusSynced, nil
}

// Check probes once, records the result, and sweeps when warranted.
// Returns whether the remote is currently reachable.
func (m *Monitor) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err := m.cfg.Probe(probeCtx)
	cancel()

	m.mu.Lock()
	wasOnline := m.online
	m.online = err == nil
	m.lastErr = err
	m.mu.Unlock()

	if err != nil {
		onlineGauge.Set(0)
		if wasOnline {
			m.logger.Warn("remote store unreachable", slog.String("error", err.Error()))
		}
		return false
	}

	onlineGauge.Set(1)
	if !wasOnline {
		m.logger.Info("remote store reachable, draining queue")
	}
	m.sweep(ctx)
	return true
}

// sweep runs one reconciliation pass if the queue has work.
func (m *Monitor) sweep(ctx context.Context) {
	qs, err := m.store.QueueStatus(ctx)
	if err != nil || qs.Pending+qs.Failed == 0 {
		return
	}

	m.mu.Lock()
	m.sweeping = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.sweeping = false
		m.mu.Unlock()
	}()

	if _, err := m.reconciler.Sweep(ctx); err != nil {
		m.logger.Warn("sweep failed", slog.String("error", err.Error()))
	}
}

// run is the probe loop. Exits when Stop is called or ctx is done.
func (m *Monitor) run(ctx context.Context) {
	defer close(m.doneCh)

	m.Check(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
