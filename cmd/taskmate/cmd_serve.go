// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskmate/taskmate/cmd/taskmate/config"
	"github.com/taskmate/taskmate/pkg/logging"
	"github.com/taskmate/taskmate/services/taskmate"
)

// runServe builds the server from the loaded configuration and blocks
// until it stops.
func runServe(cmd *cobra.Command, args []string) {
	cfg := config.Global

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Observability.LogLevel),
		LogDir:  cfg.Observability.LogDir,
		Service: "taskmate",
		JSON:    cfg.Observability.LogJSON,
	})
	defer logger.Close()

	svc, err := taskmate.New(taskmate.Config{
		Port:         cfg.Server.Port,
		GinMode:      cfg.Server.GinMode,
		StorePath:    cfg.Store.Path,
		RemoteURL:    cfg.Remote.URL,
		RemoteKey:    cfg.Remote.Key,
		SyncInterval: time.Duration(cfg.Sync.IntervalSeconds) * time.Second,
		AIBackend:    cfg.AI.Backend,
		OpenAIKey:    cfg.AI.OpenAIKey,
		OpenAIModel:  cfg.AI.OpenAIModel,
		OllamaURL:    cfg.AI.OllamaURL,
		OllamaModel:  cfg.AI.OllamaModel,
		OTelEndpoint: cfg.Observability.OTelEndpoint,
		Logger:       logger.Slog(),
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
