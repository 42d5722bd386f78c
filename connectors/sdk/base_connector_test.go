// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package sdk

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	"github.com/ozean-licht/ozean-licht-sub011/shared/logger"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

func newTestBase(t *testing.T, cfg *base.ConnectorConfig) *BaseConnector {
	t.Helper()
	b := NewBaseConnector("test", cfg)
	b.SetLogger(logger.Nop())
	return b
}

func TestNewBaseConnector_Naming(t *testing.T) {
	b := NewBaseConnector("redis", nil)
	assert.Equal(t, "redis", b.Name())
	assert.Equal(t, "redis", b.Type())

	b = NewBaseConnector("redis", &base.ConnectorConfig{Name: "cache", Timeout: 2 * time.Second})
	assert.Equal(t, "cache", b.Name())
	assert.Equal(t, 2*time.Second, b.GetTimeout())
}

func TestBaseConnector_ShutdownIsIdempotent(t *testing.T) {
	b := newTestBase(t, nil)

	var released int32
	var order []string
	b.OnShutdown(func(context.Context) error {
		atomic.AddInt32(&released, 1)
		order = append(order, "pool")
		return nil
	})
	b.OnShutdown(func(context.Context) error {
		order = append(order, "timer")
		return nil
	})

	ctx := context.Background()
	require.NoError(t, b.Shutdown(ctx))
	require.NoError(t, b.Shutdown(ctx))

	assert.Equal(t, int32(1), atomic.LoadInt32(&released))
	assert.Equal(t, []string{"timer", "pool"}, order)
	assert.True(t, b.IsShutdown())
}

func TestBaseConnector_ShutdownRecoversPanics(t *testing.T) {
	b := newTestBase(t, nil)
	b.OnShutdown(func(context.Context) error { panic("double close") })
	b.OnShutdown(func(context.Context) error { return errors.New("flush failed") })

	var err error
	assert.NotPanics(t, func() { err = b.Shutdown(context.Background()) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")
	assert.Contains(t, err.Error(), "double close")

	assert.NoError(t, b.Shutdown(context.Background()))
}

func TestBaseConnector_ExecuteAfterShutdown(t *testing.T) {
	b := newTestBase(t, nil)
	b.Operations().MustRegister(types.Capability{Name: "ping"}, func(context.Context, *types.OperationRequest) (*base.Result, error) {
		return base.NewResult("pong"), nil
	})

	res, err := b.Execute(context.Background(), &types.OperationRequest{Operation: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "pong", res.Data)

	require.NoError(t, b.Shutdown(context.Background()))
	_, err = b.Execute(context.Background(), &types.OperationRequest{Operation: "ping"})
	assert.True(t, types.IsKind(err, types.KindServiceUnavailable))

	health, err := b.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, health.Healthy)
}

func TestBaseConnector_RetriesOnlyReadOnlyOperations(t *testing.T) {
	b := newTestBase(t, &base.ConnectorConfig{MaxRetries: 2})
	b.SetRetryConfig(&RetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond, Multiplier: 1})

	var reads, writes int32
	unavailable := types.NewServiceUnavailableError("backend down", nil)
	b.Operations().MustRegister(types.Capability{Name: "read", ReadOnly: true}, func(context.Context, *types.OperationRequest) (*base.Result, error) {
		if atomic.AddInt32(&reads, 1) < 3 {
			return nil, unavailable
		}
		return base.NewResult("ok"), nil
	})
	b.Operations().MustRegister(types.Capability{Name: "write"}, func(context.Context, *types.OperationRequest) (*base.Result, error) {
		atomic.AddInt32(&writes, 1)
		return nil, unavailable
	})

	res, err := b.Execute(context.Background(), &types.OperationRequest{Operation: "read"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Data)
	assert.Equal(t, int32(3), reads)

	_, err = b.Execute(context.Background(), &types.OperationRequest{Operation: "write"})
	assert.True(t, types.IsKind(err, types.KindServiceUnavailable))
	assert.Equal(t, int32(1), writes)
}

func TestBaseConnector_ValidateBeforeExecute(t *testing.T) {
	b := newTestBase(t, nil)
	called := false
	b.Operations().MustRegister(types.Capability{
		Name:       "get",
		Parameters: []types.Parameter{{Name: "key", Positional: true, Required: true}},
	}, func(context.Context, *types.OperationRequest) (*base.Result, error) {
		called = true
		return nil, nil
	})

	_, err := b.Execute(context.Background(), &types.OperationRequest{Operation: "get"})
	assert.True(t, types.IsKind(err, types.KindValidation))
	assert.False(t, called)
}

func TestBaseConnector_ConfigAccessors(t *testing.T) {
	b := newTestBase(t, &base.ConnectorConfig{
		Credentials: map[string]string{"token": "s3cr3t"},
		Options: map[string]interface{}{
			"org":      "octo",
			"per_page": 50,
			"ratio":    float64(3),
			"verbose":  true,
		},
	})

	assert.Equal(t, "s3cr3t", b.GetCredential("token"))
	assert.Equal(t, "", b.GetCredential("missing"))
	assert.Equal(t, "octo", b.GetStringOption("org", ""))
	assert.Equal(t, 50, b.GetIntOption("per_page", 10))
	assert.Equal(t, 3, b.GetIntOption("ratio", 10))
	assert.True(t, b.GetBoolOption("verbose", false))
	assert.Equal(t, DefaultTimeout, b.GetTimeout())
}
