// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ozean-licht/ozean-licht-sub011/shared/logger"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// Limiter names
const (
	LimiterGlobal  = "global"
	LimiterService = "service"
	LimiterBurst   = "burst"
)

var (
	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_rate_limit_rejections_total",
			Help: "Requests rejected (or, with enforcement off, that would have been rejected) per limiter",
		},
		[]string{"limiter", "enforced"},
	)
	storeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_rate_limit_store_errors_total",
			Help: "Rate limit store failures that were answered by failing open",
		},
		[]string{"limiter"},
	)
)

func init() {
	prometheus.MustRegister(rejectionsTotal, storeErrorsTotal)
}

// Decision is the outcome of one limiter check
type Decision struct {
	Allowed    bool
	Limiter    string
	Key        string
	Limit      int
	Count      int64
	Window     time.Duration
	ResetAt    time.Time
	RetryAfter time.Duration
	// Degraded is set when the store failed and the request was let through
	Degraded bool
}

// Remaining returns how many requests are left in the window
func (d Decision) Remaining() int {
	left := int64(d.Limit) - d.Count
	if left < 0 {
		return 0
	}
	return int(left)
}

// Err returns the RateLimitError for a rejected decision, nil otherwise
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return types.NewRateLimitError(d.Limiter, d.Limit, d.Window, d.Key, d.RetryAfter)
}

// Limiter is one fixed-window counter policy over a Store
type Limiter struct {
	name    string
	window  time.Duration
	max     int
	store   Store
	enforce bool
	logger  *logger.Logger
	now     func() time.Time
}

func newLimiter(name string, window time.Duration, max int, store Store, enforce bool, log *logger.Logger, now func() time.Time) *Limiter {
	return &Limiter{
		name:    name,
		window:  window,
		max:     max,
		store:   store,
		enforce: enforce,
		logger:  log,
		now:     now,
	}
}

// Name returns the limiter name
func (l *Limiter) Name() string { return l.name }

// Window returns the window length
func (l *Limiter) Window() time.Duration { return l.window }

// Max returns the default maximum per window
func (l *Limiter) Max() int { return l.max }

// Allow counts one request against key. A non-positive max uses the
// limiter's default.
func (l *Limiter) Allow(ctx context.Context, key string, max int) Decision {
	if max <= 0 {
		max = l.max
	}
	d := Decision{
		Allowed: true,
		Limiter: l.name,
		Key:     key,
		Limit:   max,
		Window:  l.window,
	}

	counter, err := l.store.Increment(ctx, l.name+":"+key, l.window)
	if err != nil {
		storeErrorsTotal.WithLabelValues(l.name).Inc()
		l.logger.Warn("", "", "rate limit store failed, failing open", map[string]interface{}{
			"limiter": l.name,
			"key":     key,
			"error":   err.Error(),
		})
		d.Degraded = true
		return d
	}

	now := l.now()
	d.Count = counter.Count
	d.ResetAt = counter.ResetAt(l.window)
	if counter.Count <= int64(max) {
		return d
	}

	d.RetryAfter = d.ResetAt.Sub(now)
	if d.RetryAfter < 0 {
		d.RetryAfter = 0
	}
	rejectionsTotal.WithLabelValues(l.name, strconv.FormatBool(l.enforce)).Inc()

	if !l.enforce {
		l.logger.Warn("", "", "rate limit exceeded, enforcement disabled", map[string]interface{}{
			"limiter": l.name,
			"key":     key,
			"count":   counter.Count,
			"limit":   max,
		})
		return d
	}

	d.Allowed = false
	return d
}
