// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package redis

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

func setup(t *testing.T) (*Connector, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(&base.ConnectorConfig{Name: "cache", ConnectionURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	return c, mr
}

func run(t *testing.T, c *Connector, op string, args []string, opts map[string]interface{}) (*base.Result, error) {
	t.Helper()
	return c.Execute(context.Background(), &types.OperationRequest{Operation: op, Args: args, Options: opts})
}

func TestNew_Validation(t *testing.T) {
	_, err := New(&base.ConnectorConfig{Name: "cache"})
	assert.Error(t, err)
	_, err = New(&base.ConnectorConfig{Name: "cache", ConnectionURL: "http://nope"})
	assert.Error(t, err)
}

func TestSetGetDelete(t *testing.T) {
	c, mr := setup(t)

	_, err := run(t, c, "set", []string{"session", "abc"}, nil)
	require.NoError(t, err)
	got, err := mr.Get("cache:session")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	res, err := run(t, c, "get", []string{"session"}, nil)
	require.NoError(t, err)
	assert.Equal(t, Entry{Key: "session", Value: "abc", Found: true}, res.Data)

	res, err = run(t, c, "exists", []string{"session"}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, res.Data.(map[string]interface{})["exists"])

	res, err = run(t, c, "del", []string{"session"}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, res.Data.(map[string]interface{})["deleted"])

	res, err = run(t, c, "get", []string{"session"}, nil)
	require.NoError(t, err)
	assert.False(t, res.Data.(Entry).Found)
}

func TestPutAliasWithTTL(t *testing.T) {
	c, mr := setup(t)

	_, err := run(t, c, "put", []string{"token"}, map[string]interface{}{"value": "v", "ttl_seconds": float64(60)})
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, mr.TTL("cache:token"))

	res, err := run(t, c, "ttl", []string{"token"}, nil)
	require.NoError(t, err)
	assert.Equal(t, TTLResult{Key: "token", Exists: true, Seconds: 60}, res.Data)

	mr.FastForward(61 * time.Second)
	res, err = run(t, c, "ttl", []string{"token"}, nil)
	require.NoError(t, err)
	assert.False(t, res.Data.(TTLResult).Exists)
}

func TestTTL_NoExpiry(t *testing.T) {
	c, mr := setup(t)
	require.NoError(t, mr.Set("cache:forever", "x"))

	res, err := run(t, c, "ttl", []string{"forever"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), res.Data.(TTLResult).Seconds)
}

func TestKeysScopedToPrefix(t *testing.T) {
	c, mr := setup(t)
	require.NoError(t, mr.Set("cache:user:1", "a"))
	require.NoError(t, mr.Set("cache:user:2", "b"))
	require.NoError(t, mr.Set("cache:order:1", "c"))
	require.NoError(t, mr.Set("other:user:3", "d"))

	res, err := run(t, c, "scan", []string{"user:*"}, nil)
	require.NoError(t, err)
	keys := res.Data.(map[string]interface{})["keys"].([]string)
	sort.Strings(keys)
	assert.Equal(t, []string{"user:1", "user:2"}, keys)

	res, err = run(t, c, "keys", nil, nil)
	require.NoError(t, err)
	assert.Len(t, res.Data.(map[string]interface{})["keys"], 3)
}

func TestInvalidInput(t *testing.T) {
	c, mr := setup(t)
	mr.Lpush("cache:list", "x")

	tests := []struct {
		name string
		op   string
		args []string
		opts map[string]interface{}
		code string
	}{
		{"missing key", "get", nil, nil, types.CodeMissingParameter},
		{"glob in key", "delete", []string{"user:*"}, nil, types.CodeInvalidParameter},
		{"negative ttl", "set", []string{"k", "v"}, map[string]interface{}{"ttl_seconds": float64(-1)}, types.CodeInvalidParameter},
		{"limit too high", "keys", []string{"*"}, map[string]interface{}{"limit": float64(5000)}, types.CodeInvalidParameter},
		{"wrong type", "get", []string{"list"}, nil, types.CodeInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, c, tt.op, tt.args, tt.opts)
			require.Error(t, err)
			assert.Equal(t, tt.code, types.AsGatewayError(err).Code)
		})
	}
}

func TestBackendDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	c, err := New(&base.ConnectorConfig{Name: "cache", ConnectionURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer c.Shutdown(context.Background())
	mr.Close()

	_, err = run(t, c, "get", []string{"k"}, nil)
	require.Error(t, err)
	assert.Equal(t, types.KindServiceUnavailable, types.AsGatewayError(err).Kind)

	status, err := c.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Healthy)
}

func TestSharedClientNotClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewWithClient(&base.ConnectorConfig{Name: "cache", Options: map[string]interface{}{"key_prefix": "agents:"}}, client, false)
	_, err := run(t, c, "set", []string{"a", "1"}, nil)
	require.NoError(t, err)
	assert.True(t, mr.Exists("agents:a"))

	require.NoError(t, c.Shutdown(context.Background()))
	assert.NoError(t, client.Ping(context.Background()).Err())

	_, err = run(t, c, "get", []string{"a"}, nil)
	assert.Equal(t, types.KindServiceUnavailable, types.AsGatewayError(err).Kind)
}
