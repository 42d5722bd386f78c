// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_FixedWindow(t *testing.T) {
	mr, client := setupMiniredis(t)
	s := NewRedisStore(client, "test:")
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		c, err := s.Increment(ctx, "agent:a1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(i), c.Count)
	}

	ttl := mr.TTL("test:agent:a1")
	assert.True(t, ttl > 0 && ttl <= time.Minute, "ttl = %s", ttl)

	mr.FastForward(time.Minute)
	c, err := s.Increment(ctx, "agent:a1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Count)
}

func TestRedisStore_RepairsMissingTTL(t *testing.T) {
	mr, client := setupMiniredis(t)
	s := NewRedisStore(client, "")

	require.NoError(t, mr.Set("ratelimit:stuck", "41"))
	c, err := s.Increment(context.Background(), "stuck", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.Count)
	assert.True(t, mr.TTL("ratelimit:stuck") > 0)
}

func TestRedisStore_ConcurrentIncrements(t *testing.T) {
	_, client := setupMiniredis(t)
	s := NewRedisStore(client, "")

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Increment(context.Background(), "k", time.Minute)
		}()
	}
	wg.Wait()

	c, err := s.Increment(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(workers+1), c.Count)
}

func TestRedisStore_ErrorWhenUnavailable(t *testing.T) {
	mr, client := setupMiniredis(t)
	s := NewRedisStore(client, "")
	mr.Close()

	_, err := s.Increment(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}

func TestNewRedisStoreFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedisStoreFromURL(context.Background(), "redis://"+mr.Addr()+"/0", "")
	require.NoError(t, err)
	assert.NoError(t, s.Close())

	_, err = NewRedisStoreFromURL(context.Background(), "http://localhost:6379", "")
	assert.ErrorContains(t, err, "failed to parse")
}
