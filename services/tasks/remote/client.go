// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package remote implements the REST client for the remote task store.
//
// The remote store is a Supabase-style REST endpoint:
//
//	GET    /rest/v1/tasks?select=*
//	POST   /rest/v1/tasks
//	PATCH  /rest/v1/tasks?id=eq.{id}
//	DELETE /rest/v1/tasks?id=eq.{id}
//
// Authentication is an apikey header plus a bearer token (the same key in
// the anon-key deployment model). Task JSON on the wire uses snake_case
// date fields (due_date, created_at, updated_at); this package owns the
// translation to the domain Task type.
//
// Configuration is passed explicitly at construction. There are no
// ambient settings reads anywhere in this package.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/taskmate/taskmate/services/tasks/datatypes"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotConfigured indicates no remote URL/key was provided.
	ErrNotConfigured = errors.New("remote store not configured")

	// ErrRemoteUnavailable indicates a network failure or non-2xx status.
	// Callers recover locally; this never surfaces as a hard user error.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
)

var tracer = otel.Tracer("taskmate.remote")

// =============================================================================
// Configuration
// =============================================================================

// Config holds remote store connection settings.
type Config struct {
	// URL is the base URL of the remote store, e.g.
	// "https://abc.supabase.co". Empty disables remote sync.
	URL string

	// Key is the API key, sent as both the apikey header and the
	// bearer token.
	Key string

	// Timeout bounds each request. Default: 10 seconds.
	Timeout time.Duration

	// Logger for request logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Configured reports whether both URL and key are present.
func (c Config) Configured() bool {
	return c.URL != "" && c.Key != ""
}

// Validate checks the configuration. A zero config is valid (remote
// sync disabled); a partial one is not.
func (c Config) Validate() error {
	if c.URL == "" && c.Key == "" {
		return nil
	}
	if c.URL == "" || c.Key == "" {
		return fmt.Errorf("%w: both URL and key are required", ErrNotConfigured)
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("invalid remote URL %q: %w", c.URL, err)
	}
	return nil
}

// =============================================================================
// Wire Format
// =============================================================================

// taskRecord is the snake_case wire shape of a task.
type taskRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	DueDate     *string  `json:"due_date,omitempty"`
	Priority    string   `json:"priority"`
	Tags        []string `json:"tags"`
	Status      string   `json:"status"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
	UserID      string   `json:"user_id,omitempty"`
}

// toRecord converts a domain task to its wire shape.
func toRecord(t *datatypes.Task) taskRecord {
	rec := taskRecord{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Tags:        t.Tags,
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   t.UpdatedAt.UTC().Format(time.RFC3339Nano),
		UserID:      t.UserID,
	}
	if t.DueDate != nil {
		due := t.DueDate.UTC().Format(time.RFC3339Nano)
		rec.DueDate = &due
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	return rec
}

// toTask converts a wire record to the domain type. Unparseable dates
// are an error; the remote store is the system of record for them.
func (r taskRecord) toTask() (*datatypes.Task, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for task %s: %w", r.ID, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at for task %s: %w", r.ID, err)
	}
	task := &datatypes.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Priority:    datatypes.Priority(r.Priority),
		Tags:        r.Tags,
		Status:      datatypes.TaskStatus(r.Status),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
		UserID:      r.UserID,
	}
	if r.DueDate != nil && *r.DueDate != "" {
		due, err := time.Parse(time.RFC3339Nano, *r.DueDate)
		if err != nil {
			return nil, fmt.Errorf("parse due_date for task %s: %w", r.ID, err)
		}
		task.DueDate = &due
	}
	if task.Tags == nil {
		task.Tags = []string{}
	}
	return task, nil
}

// =============================================================================
// Client
// =============================================================================

// Client talks to the remote task store.
//
// Thread Safety: Safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a remote store client.
//
// Inputs:
//
//	cfg - Connection settings. Must pass Validate().
//
// Outputs:
//
//	*Client - The client. Calls fail with ErrNotConfigured when cfg
//	          is empty, so an unconfigured client is safe to hold.
//	error - Non-nil for a partially-populated configuration.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(slog.String("component", "remote")),
	}, nil
}

// Configured reports whether the client can reach a remote store.
func (c *Client) Configured() bool {
	return c.cfg.Configured()
}

// GetTasks fetches the full task collection from the remote store.
func (c *Client) GetTasks(ctx context.Context) ([]*datatypes.Task, error) {
	ctx, span := tracer.Start(ctx, "remote.GetTasks")
	defer span.End()

	body, err := c.do(ctx, http.MethodGet, "/rest/v1/tasks?select=*", nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}

	var records []taskRecord
	if err := json.Unmarshal(body, &records); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: decode response: %v", ErrRemoteUnavailable, err)
	}

	tasks := make([]*datatypes.Task, 0, len(records))
	for _, rec := range records {
		task, err := rec.toTask()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
		}
		tasks = append(tasks, task)
	}
	span.SetAttributes(attribute.Int("task_count", len(tasks)))
	return tasks, nil
}

// CreateTask creates a task remotely.
//
// Description:
//
//	POSTs the full task snapshot. The idempotency key (assigned once
//	per queue item) travels as the Idempotency-Key header so a retried
//	create after a successful-but-unacknowledged write can be
//	deduplicated by the remote wrapper.
func (c *Client) CreateTask(ctx context.Context, task *datatypes.Task, idempotencyKey string) error {
	ctx, span := tracer.Start(ctx, "remote.CreateTask")
	defer span.End()
	span.SetAttributes(attribute.String("task_id", task.ID))

	payload, err := json.Marshal(toRecord(task))
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.ID, err)
	}
	headers := map[string]string{"Prefer": "return=representation"}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	_, err = c.do(ctx, http.MethodPost, "/rest/v1/tasks", payload, headers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
	}
	return err
}

// UpdateTask patches a task remotely by id.
func (c *Client) UpdateTask(ctx context.Context, task *datatypes.Task) error {
	ctx, span := tracer.Start(ctx, "remote.UpdateTask")
	defer span.End()
	span.SetAttributes(attribute.String("task_id", task.ID))

	rec := toRecord(task)
	rec.CreatedAt = "" // created_at is immutable remotely
	payload, err := json.Marshal(struct {
		Title       string   `json:"title"`
		Description string   `json:"description,omitempty"`
		DueDate     *string  `json:"due_date,omitempty"`
		Priority    string   `json:"priority"`
		Tags        []string `json:"tags"`
		Status      string   `json:"status"`
		UpdatedAt   string   `json:"updated_at"`
	}{rec.Title, rec.Description, rec.DueDate, rec.Priority, rec.Tags, rec.Status, rec.UpdatedAt})
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.ID, err)
	}

	_, err = c.do(ctx, http.MethodPatch, "/rest/v1/tasks?id=eq."+url.QueryEscape(task.ID), payload, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// DeleteTask deletes a task remotely by id.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "remote.DeleteTask")
	defer span.End()
	span.SetAttributes(attribute.String("task_id", id))

	_, err := c.do(ctx, http.MethodDelete, "/rest/v1/tasks?id=eq."+url.QueryEscape(id), nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
	}
	return err
}

// Ping checks remote reachability with a minimal read. It is used as
// the connectivity probe and intentionally fetches no row data.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/rest/v1/tasks?select=id&limit=1", nil, nil)
	return err
}

// do issues one authenticated request and returns the response body.
// All transport and non-2xx failures collapse into ErrRemoteUnavailable.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, headers map[string]string) ([]byte, error) {
	if !c.cfg.Configured() {
		return nil, ErrNotConfigured
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.cfg.Key)
	req.Header.Set("Authorization", "Bearer "+c.cfg.Key)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("remote request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrRemoteUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("remote request rejected",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrRemoteUnavailable, method, path, resp.StatusCode)
	}
	return data, nil
}
