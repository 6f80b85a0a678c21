// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tasks

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskmate/taskmate/services/tasks/datatypes"
	tasksync "github.com/taskmate/taskmate/services/tasks/sync"
)

// ErrorResponse is the JSON error envelope for all task endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Handlers contains the HTTP handlers for the task API.
type Handlers struct {
	svc Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc Service) *Handlers {
	return &Handlers{svc: svc}
}

func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// HandleListTasks handles GET /api/tasks.
//
// Description:
//
//	Returns the task collection. When the remote store is reachable
//	the response reflects its latest snapshot; otherwise local data
//	is served without error.
//
// Response:
//
//	200 OK: array of Task
//	500 Internal Server Error: local store failure
func (h *Handlers) HandleListTasks(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListTasks")

	tasks, err := h.svc.ListTasks(c.Request.Context())
	if err != nil {
		logger.Error("List failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to list tasks",
			Code:  "LIST_FAILED",
		})
		return
	}
	if tasks == nil {
		tasks = []*datatypes.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

// HandleGetTask handles GET /api/tasks/:id.
//
// Response:
//
//	200 OK: Task
//	404 Not Found: unknown id
func (h *Handlers) HandleGetTask(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetTask")

	task, err := h.svc.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "Task not found",
				Code:  "TASK_NOT_FOUND",
			})
			return
		}
		logger.Error("Get failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to load task",
			Code:  "GET_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, task)
}

// HandleCreateTask handles POST /api/tasks.
//
// Description:
//
//	Creates a task. The write lands in the local store and a remote
//	create is queued, so this succeeds even while offline.
//
// Request Body:
//
//	datatypes.CreateTaskInput
//
// Response:
//
//	201 Created: Task
//	400 Bad Request: validation error
func (h *Handlers) HandleCreateTask(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreateTask")

	var input datatypes.CreateTaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	task, err := h.svc.CreateTask(c.Request.Context(), input)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: err.Error(),
				Code:  "INVALID_INPUT",
			})
			return
		}
		logger.Error("Create failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to create task",
			Code:  "CREATE_FAILED",
		})
		return
	}

	logger.Info("Task created", "task_id", task.ID)
	c.JSON(http.StatusCreated, task)
}

// HandleUpdateTask handles PATCH /api/tasks/:id.
//
// Request Body:
//
//	datatypes.UpdateTaskInput (id taken from the path)
//
// Response:
//
//	200 OK: merged Task
//	400 Bad Request: validation error
//	404 Not Found: unknown id
func (h *Handlers) HandleUpdateTask(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUpdateTask")

	var input datatypes.UpdateTaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	input.ID = c.Param("id")

	task, err := h.svc.UpdateTask(c.Request.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: err.Error(),
				Code:  "INVALID_INPUT",
			})
		case errors.Is(err, ErrTaskNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "Task not found",
				Code:  "TASK_NOT_FOUND",
			})
		default:
			logger.Error("Update failed", "error", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: "Failed to update task",
				Code:  "UPDATE_FAILED",
			})
		}
		return
	}

	logger.Info("Task updated", "task_id", task.ID)
	c.JSON(http.StatusOK, task)
}

// HandleDeleteTask handles DELETE /api/tasks/:id.
//
// Response:
//
//	204 No Content: deleted (or already absent)
func (h *Handlers) HandleDeleteTask(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteTask")

	if err := h.svc.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		logger.Error("Delete failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to delete task",
			Code:  "DELETE_FAILED",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleSyncStatus handles GET /api/tasks/sync/status.
//
// Response:
//
//	200 OK: SyncStatusResponse
func (h *Handlers) HandleSyncStatus(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSyncStatus")

	status, err := h.svc.SyncStatus(c.Request.Context())
	if err != nil {
		logger.Error("Status failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to read sync status",
			Code:  "STATUS_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, status)
}

// HandleSyncNow handles POST /api/tasks/sync.
//
// Description:
//
//	Runs one reconciliation sweep immediately and returns its result,
//	including the ids of any mutations dropped after exhausting their
//	retry budget.
//
// Response:
//
//	200 OK: sync.Result
//	409 Conflict: a sweep is already running
func (h *Handlers) HandleSyncNow(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSyncNow")

	result, err := h.svc.SyncNow(c.Request.Context())
	if err != nil {
		if errors.Is(err, tasksync.ErrSweepInProgress) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error: "Sync already in progress",
				Code:  "SYNC_IN_PROGRESS",
			})
			return
		}
		logger.Error("Sweep failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Sync failed",
			Code:  "SYNC_FAILED",
		})
		return
	}

	logger.Info("Sweep complete",
		"applied", result.Applied,
		"failed", result.Failed,
		"dropped", len(result.Dropped))
	c.JSON(http.StatusOK, result)
}

// HandleListDropped handles GET /api/tasks/sync/dropped.
//
// Response:
//
//	200 OK: array of dropped queue items, oldest first
func (h *Handlers) HandleListDropped(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListDropped")

	items, err := h.svc.DroppedMutations(c.Request.Context())
	if err != nil {
		logger.Error("Dropped list failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to read dropped mutations",
			Code:  "DROPPED_READ_FAILED",
		})
		return
	}
	if items == nil {
		items = []*datatypes.SyncItem{}
	}
	c.JSON(http.StatusOK, items)
}

// HandleAckDropped handles DELETE /api/tasks/sync/dropped.
//
// Description:
//
//	Acknowledges the dropped-mutation records, clearing them from the
//	sync status surface.
//
// Response:
//
//	204 No Content
func (h *Handlers) HandleAckDropped(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAckDropped")

	if err := h.svc.AcknowledgeDrops(c.Request.Context()); err != nil {
		logger.Error("Drop acknowledgment failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to acknowledge dropped mutations",
			Code:  "DROPPED_ACK_FAILED",
		})
		return
	}
	c.Status(http.StatusNoContent)
}
