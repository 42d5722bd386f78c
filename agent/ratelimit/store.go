// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package ratelimit

import (
	"context"
	"time"
)

// Counter is the state of one key after an increment
type Counter struct {
	Count       int64
	WindowStart time.Time
}

// ResetAt returns the instant the window ends
func (c Counter) ResetAt(window time.Duration) time.Time {
	return c.WindowStart.Add(window)
}

// Store is an atomic increment-with-expiry keyed by string. Increment starts
// a new window when none exists for the key or the previous one has elapsed,
// then adds one and returns the resulting counter. Implementations must make
// the read-modify-write atomic per key.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (Counter, error)
	Close() error
}
