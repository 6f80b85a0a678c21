// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global TaskmateConfig
	once   sync.Once
)

// Load reads the config into Global exactly once. The file is created
// with defaults on first run, and environment variables are applied on
// top of whatever the file holds.
func Load() error {
	var err error
	once.Do(func() {
		err = loadInternal(defaultPath())
	})
	return err
}

func defaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "taskmate.yaml"
	}
	return filepath.Join(home, ".taskmate", "taskmate.yaml")
}

func loadInternal(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Printf("First run detected, creating the config at %s\n", configPath)
		if err := createDefault(configPath); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read the config file: %w", err)
	}
	if err = yaml.Unmarshal(data, &Global); err != nil {
		return fmt.Errorf("failed to parse the config file: %w", err)
	}

	ApplyEnv(&Global)
	return nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides file values with environment variables. This is
// the only place in the program where the environment is read, so
// services stay testable with explicit configuration.
//
// # Variables
//
//   - TASKMATE_PORT: HTTP server port
//   - SUPABASE_URL, SUPABASE_KEY: remote task store
//   - TASKMATE_AI_BACKEND: openai, ollama, or none
//   - OPENAI_API_KEY, OPENAI_MODEL
//   - OLLAMA_URL, OLLAMA_MODEL
//   - OTEL_EXPORTER_OTLP_ENDPOINT
//   - TASKMATE_LOG_LEVEL, TASKMATE_LOG_DIR
func ApplyEnv(cfg *TaskmateConfig) {
	cfg.Server.Port = getEnvInt("TASKMATE_PORT", cfg.Server.Port)
	cfg.Remote.URL = getEnvString("SUPABASE_URL", cfg.Remote.URL)
	cfg.Remote.Key = getEnvString("SUPABASE_KEY", cfg.Remote.Key)
	cfg.AI.Backend = getEnvString("TASKMATE_AI_BACKEND", cfg.AI.Backend)
	cfg.AI.OpenAIKey = getEnvString("OPENAI_API_KEY", cfg.AI.OpenAIKey)
	cfg.AI.OpenAIModel = getEnvString("OPENAI_MODEL", cfg.AI.OpenAIModel)
	cfg.AI.OllamaURL = getEnvString("OLLAMA_URL", cfg.AI.OllamaURL)
	cfg.AI.OllamaModel = getEnvString("OLLAMA_MODEL", cfg.AI.OllamaModel)
	cfg.Observability.OTelEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Observability.OTelEndpoint)
	cfg.Observability.LogLevel = getEnvString("TASKMATE_LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogDir = getEnvString("TASKMATE_LOG_DIR", cfg.Observability.LogDir)
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
