// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

// TaskmateConfig is the on-disk CLI configuration. Environment
// variables override file values; see ApplyEnv.
type TaskmateConfig struct {
	Server ServerConfig `yaml:"server"`

	Store StoreConfig `yaml:"store"`

	// Remote points at the hosted task store. Leave empty to run
	// local-only with no background sync.
	Remote RemoteConfig `yaml:"remote"`

	Sync SyncConfig `yaml:"sync"`

	AI AIConfig `yaml:"ai"`

	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Port    int    `yaml:"port"`     // e.g. 8080
	GinMode string `yaml:"gin_mode"` // debug, release, test
}

type StoreConfig struct {
	Path string `yaml:"path"` // Badger database directory
}

type RemoteConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

type SyncConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

type AIConfig struct {
	// Backend can be "openai", "ollama", or "none".
	Backend     string `yaml:"backend"`
	OpenAIKey   string `yaml:"openai_key,omitempty"`
	OpenAIModel string `yaml:"openai_model,omitempty"`
	OllamaURL   string `yaml:"ollama_url,omitempty"`
	OllamaModel string `yaml:"ollama_model,omitempty"`
}

type ObservabilityConfig struct {
	OTelEndpoint string `yaml:"otel_endpoint"`
	LogLevel     string `yaml:"log_level"` // debug, info, warn, error
	LogDir       string `yaml:"log_dir,omitempty"`
	LogJSON      bool   `yaml:"log_json"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() TaskmateConfig {
	return TaskmateConfig{
		Server: ServerConfig{
			Port:    8080,
			GinMode: "release",
		},
		Store: StoreConfig{
			Path: "./data/tasks",
		},
		Sync: SyncConfig{
			IntervalSeconds: 30,
		},
		AI: AIConfig{
			Backend: "none",
		},
		Observability: ObservabilityConfig{
			OTelEndpoint: "localhost:4317",
			LogLevel:     "info",
		},
	}
}
