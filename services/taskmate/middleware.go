// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package taskmate

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// =============================================================================
// Rate Limiting
// =============================================================================

// RateLimitConfig bounds request rates on the AI endpoints.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained per-client rate. Default: 10.
	RequestsPerMinute int

	// Burst is the number of requests a client may issue at once.
	// Default: RequestsPerMinute.
	Burst int

	// MaxClients caps the number of tracked client limiters.
	// Default: 1024.
	MaxClients int
}

// DefaultRateLimitConfig matches the production AI endpoint budget.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		MaxClients:        1024,
	}
}

func applyRateLimitDefaults(cfg RateLimitConfig) RateLimitConfig {
	def := DefaultRateLimitConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMinute
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	return cfg
}

// clientLimiter pairs a token bucket with its last use, so idle
// entries can be evicted when the client table fills.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter hands out one token bucket per client IP.
//
// Thread Safety: Safe for concurrent use.
type rateLimiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	return &rateLimiter{
		cfg:     applyRateLimitDefaults(cfg),
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// allow reports whether the client identified by key may proceed.
func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cl, ok := r.clients[key]
	if !ok {
		if len(r.clients) >= r.cfg.MaxClients {
			r.evictIdle()
		}
		cl = &clientLimiter{
			limiter: rate.NewLimiter(
				rate.Every(time.Minute/time.Duration(r.cfg.RequestsPerMinute)),
				r.cfg.Burst),
		}
		r.clients[key] = cl
	}
	cl.lastSeen = r.now()
	return cl.limiter.Allow()
}

// evictIdle removes the least recently seen client. Called with the
// lock held when the table is full.
func (r *rateLimiter) evictIdle() {
	var oldestKey string
	var oldest time.Time
	for key, cl := range r.clients {
		if oldestKey == "" || cl.lastSeen.Before(oldest) {
			oldestKey = key
			oldest = cl.lastSeen
		}
	}
	if oldestKey != "" {
		delete(r.clients, oldestKey)
	}
}

// RateLimit returns Gin middleware enforcing a per-client-IP request
// budget. Rejected requests get 429 with a stable error code.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := newRateLimiter(cfg)
	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
				"code":  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
