// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// incrementScript increments the counter and starts the expiry on the first
// hit of a window. It returns {count, remaining ttl in ms}. A key left without
// a TTL is repaired so it cannot pin a caller forever.
var incrementScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore keeps counters in Redis so every gateway instance shares them.
// One script call per request makes the increment atomic across instances.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
	owned  bool
}

// NewRedisStore wraps an existing client. The caller keeps ownership of it.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

// NewRedisStoreFromURL connects to redis://host:port/db and verifies the
// connection. The store closes the client on Close.
func NewRedisStoreFromURL(ctx context.Context, redisURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := NewRedisStore(client, prefix)
	s.owned = true
	return s, nil
}

// Increment implements Store
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (Counter, error) {
	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1
	}

	res, err := incrementScript.Run(ctx, s.client, []string{s.prefix + key}, windowMs).Result()
	if err != nil {
		return Counter{}, fmt.Errorf("redis increment %s: %w", key, err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return Counter{}, fmt.Errorf("redis increment %s: unexpected reply %T", key, res)
	}
	count, ok1 := vals[0].(int64)
	ttlMs, ok2 := vals[1].(int64)
	if !ok1 || !ok2 {
		return Counter{}, fmt.Errorf("redis increment %s: unexpected reply %v", key, vals)
	}

	elapsed := time.Duration(windowMs-ttlMs) * time.Millisecond
	return Counter{
		Count:       count,
		WindowStart: s.now().Add(-elapsed),
	}, nil
}

// Close releases the client if the store created it
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
