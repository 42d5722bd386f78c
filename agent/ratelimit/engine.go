// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ozean-licht/ozean-licht-sub011/shared/logger"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// Fixed windows of the per-service and burst limiters
const (
	ServiceWindow = time.Minute
	BurstWindow   = time.Second
)

// Config holds the limiter settings. It is loaded once at startup and passed
// in; the engine never reads the environment.
type Config struct {
	// Enforce=false keeps counting and logging but admits every request
	Enforce bool

	GlobalWindow time.Duration
	GlobalMax    int

	ServiceDefaultMax int
	ServiceOverrides  map[string]int

	BurstMax int
}

// DefaultConfig returns the default limits
func DefaultConfig() Config {
	return Config{
		Enforce:           true,
		GlobalWindow:      time.Minute,
		GlobalMax:         100,
		ServiceDefaultMax: 100,
		BurstMax:          20,
	}
}

// Validate checks that every limit is usable
func (c Config) Validate() error {
	if c.GlobalWindow <= 0 {
		return errors.New("global rate limit window must be positive")
	}
	if c.GlobalMax <= 0 || c.ServiceDefaultMax <= 0 || c.BurstMax <= 0 {
		return errors.New("rate limit maximums must be positive")
	}
	for svc, max := range c.ServiceOverrides {
		if max <= 0 {
			return fmt.Errorf("rate limit override for service %q must be positive", svc)
		}
	}
	return nil
}

// Engine runs the global, per-service and burst limiters over one store
type Engine struct {
	cfg     Config
	global  *Limiter
	service *Limiter
	burst   *Limiter
}

// EngineOption configures an Engine
type EngineOption func(*engineOptions)

type engineOptions struct {
	logger *logger.Logger
	now    func() time.Time
}

// WithLogger sets the logger used for fail-open and dry-run warnings
func WithLogger(l *logger.Logger) EngineOption {
	return func(o *engineOptions) { o.logger = l }
}

// WithClock replaces time.Now when computing retry hints
func WithClock(now func() time.Time) EngineOption {
	return func(o *engineOptions) { o.now = now }
}

// NewEngine builds the three limiters over store
func NewEngine(store Store, cfg Config, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, errors.New("rate limit store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := engineOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.New("ratelimit")
	}

	overrides := make(map[string]int, len(cfg.ServiceOverrides))
	for k, v := range cfg.ServiceOverrides {
		overrides[k] = v
	}
	cfg.ServiceOverrides = overrides

	return &Engine{
		cfg:     cfg,
		global:  newLimiter(LimiterGlobal, cfg.GlobalWindow, cfg.GlobalMax, store, cfg.Enforce, o.logger, o.now),
		service: newLimiter(LimiterService, ServiceWindow, cfg.ServiceDefaultMax, store, cfg.Enforce, o.logger, o.now),
		burst:   newLimiter(LimiterBurst, BurstWindow, cfg.BurstMax, store, cfg.Enforce, o.logger, o.now),
	}, nil
}

// Subject returns the limiter key of a caller: its agent id when
// authenticated, otherwise its address.
func Subject(identity *types.IdentityToken, remoteAddr string) string {
	if identity != nil && identity.AgentID != "" {
		return "agent:" + identity.AgentID
	}
	return "ip:" + remoteAddr
}

// CheckCaller runs the burst then the global limiter for a caller. The
// identity's rate limit override, if any, replaces the global maximum. The
// returned decision is the one to report in response headers; a rejection
// comes back as a RateLimitError and skips the remaining limiter.
func (e *Engine) CheckCaller(ctx context.Context, identity *types.IdentityToken, subject string) (Decision, error) {
	burst := e.burst.Allow(ctx, subject, 0)
	if !burst.Allowed {
		return burst, burst.Err()
	}

	max := 0
	if override, ok := identity.QuotaOverride(); ok {
		max = override
	}
	global := e.global.Allow(ctx, subject, max)
	return global, global.Err()
}

// CheckService runs the per-service limiter, keyed <service>:<subject>
func (e *Engine) CheckService(ctx context.Context, service, subject string) (Decision, error) {
	d := e.service.Allow(ctx, service+":"+subject, e.ServiceLimit(service))
	return d, d.Err()
}

// ServiceLimit returns the per-minute maximum for a service
func (e *Engine) ServiceLimit(service string) int {
	if max, ok := e.cfg.ServiceOverrides[service]; ok {
		return max
	}
	return e.cfg.ServiceDefaultMax
}

// Enforcing reports whether rejections are enforced
func (e *Engine) Enforcing() bool {
	return e.cfg.Enforce
}
