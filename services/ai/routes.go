// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ai

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the AI proxy under the given router group.
//
// Routes:
//
//	POST /ai/suggest   - Task suggestions for a prompt
//	POST /ai/summarize - Text summarization
//
// Rate limiting is applied by middleware passed in by the caller.
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers, middleware ...gin.HandlerFunc) {
	aiGroup := rg.Group("/ai")
	aiGroup.Use(middleware...)
	{
		aiGroup.POST("/suggest", h.HandleSuggest)
		aiGroup.POST("/summarize", h.HandleSummarize)
	}
}
