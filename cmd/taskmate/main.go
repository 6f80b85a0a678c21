// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command taskmate is the TaskMate server and management CLI.
//
// The serve subcommand runs the HTTP API with the local store, sync
// subsystem, and AI proxy. The remaining subcommands are thin clients
// against a running server.
//
// # Usage
//
//	# Start the server
//	taskmate serve
//
//	# Manage tasks against a running server
//	taskmate task add "Buy groceries" --priority high
//	taskmate task list
//	taskmate task done <id>
//	taskmate task rm <id>
//
//	# AI helpers
//	taskmate suggest "plan the product launch"
//	taskmate summarize "long text..."
package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/taskmate/taskmate/cmd/taskmate/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if err := config.Load(); err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}
	}
}
