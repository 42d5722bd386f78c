// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package registry

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

// mockConnector implements base.Connector for testing
type mockConnector struct {
	name     string
	connType string
	ops      *base.OperationTable

	calls       atomic.Int32
	shutdowns   atomic.Int32
	healthErr   error
	healthPanic bool
	shutdownErr error
	release     chan struct{}
}

func newMockConnector(name string) *mockConnector {
	m := &mockConnector{
		name:     name,
		connType: "source-control",
		ops:      base.NewOperationTable(name),
		release:  make(chan struct{}),
	}
	m.ops.MustRegister(types.Capability{
		Name:         "list-repos",
		Aliases:      []string{"list-repositories"},
		RequiresAuth: true,
		TokenCost:    5,
		Permission:   "repo:read",
		ReadOnly:     true,
	}, func(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
		m.calls.Add(1)
		return base.NewResult([]string{"octo/hello-world"}), nil
	})
	m.ops.MustRegister(types.Capability{
		Name:         "get-repo",
		RequiresAuth: true,
		TokenCost:    2,
		Parameters:   []types.Parameter{{Name: "repo", Type: "string", Required: true, Positional: true}},
	}, func(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
		m.calls.Add(1)
		return &base.Result{Data: req.Arg(0), TokensUsed: 9}, nil
	})
	m.ops.MustRegister(types.Capability{Name: "explode", RequiresAuth: true},
		func(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
			m.calls.Add(1)
			panic("handler bug")
		})
	m.ops.MustRegister(types.Capability{Name: "hang", RequiresAuth: true},
		func(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
			m.calls.Add(1)
			<-m.release
			return base.NewResult("late"), nil
		})
	m.ops.MustRegister(types.Capability{Name: "wait", RequiresAuth: true},
		func(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
			m.calls.Add(1)
			<-ctx.Done()
			return nil, ctx.Err()
		})
	m.ops.MustRegister(types.Capability{Name: "fail", RequiresAuth: true},
		func(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
			m.calls.Add(1)
			return nil, base.MapHTTPStatus(name, "fail", 503, "maintenance")
		})
	m.ops.MustRegister(types.Capability{Name: "ping"},
		func(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
			return base.NewResult("pong"), nil
		})
	return m
}

func (m *mockConnector) Name() string                     { return m.name }
func (m *mockConnector) Type() string                     { return m.connType }
func (m *mockConnector) Capabilities() []types.Capability { return m.ops.Capabilities() }

func (m *mockConnector) ValidateParams(req *types.OperationRequest) error {
	return m.ops.Validate(req)
}

func (m *mockConnector) Execute(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	return m.ops.Execute(ctx, req)
}

func (m *mockConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if m.healthPanic {
		panic("health check bug")
	}
	if m.healthErr != nil {
		return nil, m.healthErr
	}
	return &base.HealthStatus{Healthy: true, Latency: time.Millisecond, Timestamp: time.Now()}, nil
}

func (m *mockConnector) Shutdown(ctx context.Context) error {
	m.shutdowns.Add(1)
	return m.shutdownErr
}

func newTestRegistry(t *testing.T, conns ...*mockConnector) *Registry {
	t.Helper()
	r := NewRegistry()
	r.SetLogger(logger.Nop())
	for _, c := range conns {
		require.NoError(t, r.Register(c, nil))
	}
	return r
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := newTestRegistry(t, newMockConnector("source-control"))

	conn, err := r.Get("source-control")
	require.NoError(t, err)
	assert.Equal(t, "source-control", conn.Name())
	assert.True(t, r.Has("source-control"))
	assert.Equal(t, 1, r.Count())

	cfg, ok := r.Config("source-control")
	require.True(t, ok)
	assert.Equal(t, "source-control", cfg.Type)
}

func TestRegistry_GetUnknownService(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Get("nope")
	require.Error(t, err)

	gwErr := types.AsGatewayError(err)
	assert.Equal(t, types.KindNotFound, gwErr.Kind)
	assert.Equal(t, types.CodeUnknownService, gwErr.Code)
	assert.Equal(t, "nope", gwErr.Details["service"])

	_, err = r.Describe("nope")
	assert.True(t, types.IsKind(err, types.KindNotFound))
}

func TestRegistry_RegisterRejects(t *testing.T) {
	r := newTestRegistry(t, newMockConnector("github"))

	assert.Error(t, r.Register(nil, nil))
	assert.Error(t, r.Register(newMockConnector(""), nil))
	assert.Error(t, r.Register(newMockConnector("github"), nil), "duplicate name")

	r.Seal()
	r.Seal()
	assert.True(t, r.Sealed())
	assert.ErrorIs(t, r.Register(newMockConnector("gitlab"), nil), ErrSealed)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_ListAndCatalogSorted(t *testing.T) {
	r := newTestRegistry(t, newMockConnector("zeta"), newMockConnector("alpha"), newMockConnector("mid"))
	r.Seal()

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.List())

	catalog := r.Catalog()
	require.Len(t, catalog, 3)
	assert.Equal(t, "alpha", catalog[0].Name)
	assert.Equal(t, "source-control", catalog[0].Type)
	assert.Equal(t, "list-repos", catalog[0].Capabilities[0].Name)

	// Catalog entries are copies
	catalog[0].Capabilities[0].Name = "mutated"
	desc, err := r.Describe("alpha")
	require.NoError(t, err)
	assert.Equal(t, "list-repos", desc.Capabilities[0].Name)
}

func TestRegistry_RequiredPermission(t *testing.T) {
	r := newTestRegistry(t, newMockConnector("source-control"))
	r.Seal()

	tests := []struct {
		name      string
		service   string
		operation string
		want      string
	}{
		{"explicit permission", "source-control", "list-repos", "repo:read"},
		{"alias resolves to canonical", "source-control", "list-repositories", "repo:read"},
		{"default permission", "source-control", "get-repo", "source-control:get-repo"},
		{"no auth required", "source-control", "ping", ""},
		{"unknown operation", "source-control", "delete-everything", ""},
		{"unknown service", "nope", "list-repos", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.RequiredPermission(tt.service, tt.operation))
		})
	}
}

func TestRegistry_HealthCheck(t *testing.T) {
	ok := newMockConnector("ok")
	broken := newMockConnector("broken")
	broken.healthErr = errors.New("connection refused")
	panicky := newMockConnector("panicky")
	panicky.healthPanic = true

	r := newTestRegistry(t, ok, broken, panicky)
	r.Seal()

	statuses := r.HealthCheck(context.Background())
	require.Len(t, statuses, 3)
	assert.True(t, statuses["ok"].Healthy)
	assert.False(t, statuses["broken"].Healthy)
	assert.Equal(t, "connection refused", statuses["broken"].Error)
	assert.False(t, statuses["panicky"].Healthy)
	assert.False(t, Healthy(statuses))

	assert.True(t, Healthy(map[string]*base.HealthStatus{"ok": {Healthy: true}}))
}

func TestRegistry_ShutdownAll(t *testing.T) {
	a := newMockConnector("a")
	b := newMockConnector("b")
	b.shutdownErr = errors.New("close failed")

	r := newTestRegistry(t, a, b)
	r.Seal()

	err := r.ShutdownAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b: close failed")
	assert.Equal(t, int32(1), a.shutdowns.Load())
	assert.Equal(t, int32(1), b.shutdowns.Load())
}
