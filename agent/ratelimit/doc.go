// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package ratelimit implements the gateway's three fixed-window limiters
// (global, per-service and burst) over an injectable Store. MemoryStore serves
// tests and single instances; RedisStore shares counters between instances.
// Store failures fail open and are logged.
package ratelimit
