package ratelimit

import (
	"context"
	"time"

	"github.com/victoralfred/riskengine/internal/config"
)

// RateLimitResult represents the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// RateLimiter defines the interface for rate limiting
type RateLimiter interface {
	// Check checks if a request should be allowed and updates counters
	Check(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error)

	// Reset resets the rate limit for a key
	Reset(ctx context.Context, key string) error

	// GetStatus returns current rate limit status without updating counters
	GetStatus(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error)
}

// Rule is a request budget over a sliding window
type Rule struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig holds the global and per-client budgets. Calculation routes
// are CPU-bound, so Compute applies an extra per-client budget to them.
type RateLimitConfig struct {
	Global  Rule
	PerIP   Rule
	Compute Rule
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Global:  Rule{Limit: 1000, Window: time.Minute},
		PerIP:   Rule{Limit: 60, Window: time.Minute},
		Compute: Rule{Limit: 20, Window: time.Minute},
	}
}

// FromConfig derives limits from application configuration
func FromConfig(cfg config.RateLimitConfig) *RateLimitConfig {
	out := DefaultConfig()
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	if cfg.Global > 0 {
		out.Global = Rule{Limit: cfg.Global, Window: window}
	}
	if cfg.PerIP > 0 {
		out.PerIP = Rule{Limit: cfg.PerIP, Window: window}
		out.Compute = Rule{Limit: max(1, cfg.PerIP/3), Window: window}
	}
	return out
}
