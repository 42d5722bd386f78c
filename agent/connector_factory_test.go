// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozean-licht/ozean-licht-sub011/agent/ratelimit"
	"github.com/ozean-licht/ozean-licht-sub011/common/usage"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

type fakeConnector struct {
	name      string
	shutdowns int
}

func (f *fakeConnector) Name() string { return f.name }
func (f *fakeConnector) Type() string { return "fake" }
func (f *fakeConnector) Capabilities() []types.Capability {
	return []types.Capability{{Name: "ping", RequiresAuth: true, TokenCost: 1}}
}
func (f *fakeConnector) ValidateParams(*types.OperationRequest) error { return nil }
func (f *fakeConnector) Execute(context.Context, *types.OperationRequest) (*base.Result, error) {
	return base.NewResult("pong"), nil
}
func (f *fakeConnector) HealthCheck(context.Context) (*base.HealthStatus, error) {
	return &base.HealthStatus{Healthy: true, Timestamp: time.Now()}, nil
}
func (f *fakeConnector) Shutdown(context.Context) error {
	f.shutdowns++
	return nil
}

func TestDefaultConnectorFactory_Types(t *testing.T) {
	f := DefaultConnectorFactory()
	assert.Equal(t, []string{
		"azure-blob", "cassandra", "gcs", "kafka", "mongodb", "mysql",
		"postgres", "redis", "s3", "slack", "source-control",
	}, f.RegisteredTypes())
	assert.True(t, f.IsRegistered("redis"))
	assert.False(t, f.IsRegistered("snowflake"))
}

func TestConnectorFactory_Register(t *testing.T) {
	f := NewConnectorFactory()
	creator := func(context.Context, *base.ConnectorConfig) (base.Connector, error) {
		return &fakeConnector{name: "x"}, nil
	}

	require.NoError(t, f.Register("fake", creator))
	assert.Error(t, f.Register("fake", creator), "duplicate type")
	assert.Error(t, f.Register("", creator))

	f.RegisterOrReplace("fake", creator)
	assert.Equal(t, []string{"fake"}, f.RegisteredTypes())

	_, err := f.Create(context.Background(), &base.ConnectorConfig{Name: "x", Type: "unknown"})
	assert.Error(t, err)
	_, err = f.Create(context.Background(), nil)
	assert.Error(t, err)
}

func TestBuildRegistry(t *testing.T) {
	f := DefaultConnectorFactory()
	pricing := usage.NewPricing()

	configs := []*base.ConnectorConfig{
		{
			Name:            "team-chat",
			Type:            "slack",
			Enabled:         true,
			Credentials:     map[string]string{"bot_token": "xoxb-test"},
			CostPer1KTokens: 0.5,
		},
		{
			Name:          "cache",
			Type:          "redis",
			Enabled:       true,
			ConnectionURL: "redis://localhost:6379/0",
		},
		{Name: "disabled", Type: "redis", Enabled: false},
	}

	reg, err := f.BuildRegistry(context.Background(), configs, pricing)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.ShutdownAll(context.Background()) })

	assert.True(t, reg.Sealed())
	assert.Equal(t, []string{"cache", "team-chat"}, reg.List())
	assert.InDelta(t, 50.0, pricing.Rate("team-chat"), 1e-9)
	assert.Equal(t, "slack:write", reg.RequiredPermission("team-chat", "send-message"))
}

func TestBuildRegistry_ShutsDownOnFailure(t *testing.T) {
	f := NewConnectorFactory()
	first := &fakeConnector{name: "first"}
	f.RegisterOrReplace("fake", func(_ context.Context, cfg *base.ConnectorConfig) (base.Connector, error) {
		if cfg.Name == "broken" {
			return nil, errors.New("boom")
		}
		return first, nil
	})

	_, err := f.BuildRegistry(context.Background(), []*base.ConnectorConfig{
		{Name: "first", Type: "fake", Enabled: true},
		{Name: "broken", Type: "fake", Enabled: true},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, 1, first.shutdowns)
}

func TestBuildRegistry_DuplicateName(t *testing.T) {
	f := NewConnectorFactory()
	f.RegisterOrReplace("fake", func(_ context.Context, cfg *base.ConnectorConfig) (base.Connector, error) {
		return &fakeConnector{name: cfg.Name}, nil
	})

	_, err := f.BuildRegistry(context.Background(), []*base.ConnectorConfig{
		{Name: "same", Type: "fake", Enabled: true},
		{Name: "same", Type: "fake", Enabled: true},
	}, nil)
	assert.Error(t, err)
}

func TestApplyServiceLimits(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	cfg.ServiceOverrides = map[string]int{"github": 10}

	got := applyServiceLimits(cfg, []*base.ConnectorConfig{
		{Name: "github", Enabled: true, RateLimitPerMinute: 500},
		{Name: "chat", Enabled: true, RateLimitPerMinute: 50},
		{Name: "cache", Enabled: true},
		{Name: "off", Enabled: false, RateLimitPerMinute: 5},
	})

	assert.Equal(t, map[string]int{"github": 10, "chat": 50}, got.ServiceOverrides)
	assert.Equal(t, map[string]int{"github": 10}, cfg.ServiceOverrides, "input is not mutated")
}
