// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package taskmate wires the task repository, sync subsystem, and AI
// proxy into one HTTP server.
//
// # Usage
//
//	cfg := taskmate.Config{Port: 8080, StorePath: "./data/tasks"}
//	svc, err := taskmate.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
//
// Configuration is explicit: this package never reads environment
// variables. Entry points (cmd/taskmate) translate the environment and
// config files into a Config before calling New.
package taskmate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/taskmate/taskmate/services/ai"
	"github.com/taskmate/taskmate/services/tasks"
	"github.com/taskmate/taskmate/services/tasks/remote"
	"github.com/taskmate/taskmate/services/tasks/store"
	tasksync "github.com/taskmate/taskmate/services/tasks/sync"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the TaskMate server.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until it stops.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds all server settings. Zero values use defaults.
type Config struct {
	// Port is the HTTP server port. Default: 8080.
	Port int

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test". Default: "release".
	GinMode string

	// StorePath is the local Badger database directory.
	// Default: "./data/tasks". Ignored when StoreInMemory is set.
	StorePath string

	// StoreInMemory keeps the local store in memory only.
	// Used by tests and throwaway environments.
	StoreInMemory bool

	// RemoteURL is the remote task store base URL, e.g. a Supabase
	// project URL. If empty, the server runs local-only: writes
	// succeed but nothing is queued or synced.
	RemoteURL string

	// RemoteKey is the API key for the remote store.
	RemoteKey string

	// SyncInterval is how often connectivity is probed.
	// Default: 30 seconds.
	SyncInterval time.Duration

	// AIBackend selects the suggestion/summary generator.
	// Valid values: "openai", "ollama", "none". Default: "none",
	// which serves deterministic fallbacks only.
	AIBackend string

	// OpenAIKey authenticates the OpenAI backend.
	// Required when AIBackend is "openai".
	OpenAIKey string

	// OpenAIModel overrides the default OpenAI model.
	OpenAIModel string

	// OllamaURL points at a local Ollama server.
	// Required when AIBackend is "ollama".
	OllamaURL string

	// OllamaModel overrides the default Ollama model.
	OllamaModel string

	// RateLimit bounds AI endpoint traffic per client IP.
	// Zero values use DefaultRateLimitConfig.
	RateLimit RateLimitConfig

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "localhost:4317".
	OTelEndpoint string

	// Logger receives all server logs. Default: slog.Default().
	Logger *slog.Logger
}

// AI backend selector values.
const (
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
	BackendNone   = "none"
)

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.GinMode == "" {
		cfg.GinMode = gin.ReleaseMode
	}
	if cfg.StorePath == "" {
		cfg.StorePath = "./data/tasks"
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 30 * time.Second
	}
	if cfg.AIBackend == "" {
		cfg.AIBackend = BackendNone
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "localhost:4317"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// =============================================================================
// Service Implementation
// =============================================================================

type service struct {
	config Config
	logger *slog.Logger
	router *gin.Engine

	store      *store.Store
	remote     *remote.Client
	reconciler *tasksync.Reconciler
	monitor    *tasksync.Monitor

	taskService tasks.Service
	aiService   ai.Service

	tracerCleanup func(context.Context)
}

var _ Service = (*service)(nil)

// =============================================================================
// Constructor
// =============================================================================

// New creates a ready-to-run TaskMate server.
//
// # Description
//
// New initializes every component in dependency order:
//  1. Applies defaults for zero-valued configuration
//  2. Initializes OpenTelemetry tracing
//  3. Opens the local Badger store and remote client
//  4. Builds the reconciler and connectivity monitor
//  5. Builds the task and AI services
//  6. Registers all HTTP routes
//
// # Inputs
//
//   - cfg: Server configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Server ready for Run()
//   - error: Non-nil if any component fails to initialize
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}
	s.logger = s.config.Logger

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if err := s.initTaskService(); err != nil {
		s.cleanup()
		return nil, err
	}

	if err := s.initAIService(); err != nil {
		s.cleanup()
		return nil, err
	}

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the connectivity monitor and the HTTP server, blocking
// until the server stops. Cleanup is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.monitor.Start(ctx)
	defer s.monitor.Stop()

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("starting taskmate server",
		slog.Int("port", s.config.Port),
		slog.String("ai_backend", s.config.AIBackend),
		slog.Bool("remote_configured", s.remote.Configured()),
	)

	return s.router.Run(addr)
}

// Router returns the configured Gin engine. Callers must not modify
// routes after construction.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer initializes OpenTelemetry distributed tracing.
//
// Uses an insecure gRPC connection, appropriate for collectors on
// internal networks. The connection is lazy, so an unreachable
// collector does not fail startup.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("taskmate")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown OTLP exporter",
				slog.String("error", err.Error()))
		}
	}

	return cleanup, nil
}

// initTaskService builds the local store, remote client, reconciler,
// connectivity monitor, and the task service on top of them.
func (s *service) initTaskService() error {
	storeCfg := store.DefaultConfig(s.config.StorePath)
	if s.config.StoreInMemory {
		storeCfg = store.InMemoryConfig()
	}
	storeCfg.Logger = s.logger
	s.store = store.New(storeCfg)

	client, err := remote.NewClient(remote.Config{
		URL:    s.config.RemoteURL,
		Key:    s.config.RemoteKey,
		Logger: s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create remote client: %w", err)
	}
	s.remote = client

	s.reconciler = tasksync.NewReconciler(s.store, s.remote, s.logger)

	monitorCfg := tasksync.DefaultMonitorConfig(s.remote.Ping)
	monitorCfg.Interval = s.config.SyncInterval
	monitorCfg.Logger = s.logger
	s.monitor = tasksync.NewMonitor(monitorCfg, s.store, s.reconciler)

	s.taskService = tasks.NewService(s.store, s.remote, s.reconciler, s.monitor, s.logger)
	return nil
}

// initAIService builds the selected generation backend and the AI
// service around it. The "none" backend serves fallbacks only.
func (s *service) initAIService() error {
	var llm ai.LLMClient
	var err error

	switch s.config.AIBackend {
	case BackendOpenAI:
		llm, err = ai.NewOpenAIClient(ai.OpenAIConfig{
			APIKey: s.config.OpenAIKey,
			Model:  s.config.OpenAIModel,
		})
	case BackendOllama:
		llm, err = ai.NewOllamaClient(ai.OllamaConfig{
			BaseURL: s.config.OllamaURL,
			Model:   s.config.OllamaModel,
		})
	case BackendNone:
		llm = nil
	default:
		return fmt.Errorf("unknown AI backend %q", s.config.AIBackend)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s client: %w", s.config.AIBackend, err)
	}

	s.aiService = ai.NewService(llm, ai.DefaultCacheConfig(), s.logger)
	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	gin.SetMode(s.config.GinMode)

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware("taskmate"))

	api := s.router.Group("/api")
	tasks.RegisterRoutes(api, tasks.NewHandlers(s.taskService))
	ai.RegisterRoutes(api, ai.NewHandlers(s.aiService), RateLimit(s.config.RateLimit))

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ready", s.handleReady)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("store close error", slog.String("error", err.Error()))
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Health Endpoints
// =============================================================================

func (s *service) handleHealth(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// handleReady reports readiness plus the current sync posture so
// deploy tooling can tell local-only mode apart from degraded sync.
func (s *service) handleReady(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":            "ready",
		"remote_configured": s.remote.Configured(),
		"online":            s.monitor.Online(),
	})
}
