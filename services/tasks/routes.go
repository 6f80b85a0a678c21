// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tasks

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the task API under the given router group.
//
// Routes:
//
//	GET    /tasks              - List tasks (remote-refreshed when online)
//	POST   /tasks              - Create a task
//	GET    /tasks/sync/status  - Connectivity and queue status
//	POST   /tasks/sync         - Run a reconciliation sweep now
//	GET    /tasks/sync/dropped - List mutations dropped after the retry ceiling
//	DELETE /tasks/sync/dropped - Acknowledge dropped mutations
//	GET    /tasks/:id          - Get one task
//	PATCH  /tasks/:id          - Partially update a task
//	DELETE /tasks/:id          - Delete a task
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	tasks := rg.Group("/tasks")
	{
		tasks.GET("", h.HandleListTasks)
		tasks.POST("", h.HandleCreateTask)
		tasks.GET("/sync/status", h.HandleSyncStatus)
		tasks.POST("/sync", h.HandleSyncNow)
		tasks.GET("/sync/dropped", h.HandleListDropped)
		tasks.DELETE("/sync/dropped", h.HandleAckDropped)
		tasks.GET("/:id", h.HandleGetTask)
		tasks.PATCH("/:id", h.HandleUpdateTask)
		tasks.DELETE("/:id", h.HandleDeleteTask)
	}
}
