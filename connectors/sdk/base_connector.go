// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	"github.com/ozean-licht/ozean-licht-sub011/shared/logger"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// DefaultTimeout applies when the service config sets none
const DefaultTimeout = 30 * time.Second

// BaseConnector provides a foundation for building service handlers.
// Embed it, register operations on Operations() in the constructor and add
// release functions with OnShutdown.
type BaseConnector struct {
	name     string
	connType string
	config   *base.ConnectorConfig
	ops      *base.OperationTable
	logger   *logger.Logger
	retry    *RetryConfig

	mu           sync.Mutex
	closers      []func(context.Context) error
	shutdownOnce sync.Once
	closed       atomic.Bool
}

// NewBaseConnector creates a base for a handler of connType. The service
// name comes from cfg.Name and defaults to the type.
func NewBaseConnector(connType string, cfg *base.ConnectorConfig) *BaseConnector {
	if cfg == nil {
		cfg = &base.ConnectorConfig{}
	}
	name := cfg.Name
	if name == "" {
		name = connType
	}
	b := &BaseConnector{
		name:     name,
		connType: connType,
		config:   cfg,
		ops:      base.NewOperationTable(name),
		logger:   logger.New("connector-" + connType),
	}
	if cfg.MaxRetries > 0 {
		b.retry = DefaultRetryConfig()
		b.retry.MaxRetries = cfg.MaxRetries
	}
	return b
}

// Name returns the service name
func (b *BaseConnector) Name() string { return b.name }

// Type returns the handler type
func (b *BaseConnector) Type() string { return b.connType }

// Config returns the service configuration
func (b *BaseConnector) Config() *base.ConnectorConfig { return b.config }

// Logger returns the handler logger
func (b *BaseConnector) Logger() *logger.Logger { return b.logger }

// SetLogger replaces the handler logger
func (b *BaseConnector) SetLogger(l *logger.Logger) { b.logger = l }

// SetRetryConfig sets the retry policy for read-only operations. nil disables
// retries.
func (b *BaseConnector) SetRetryConfig(cfg *RetryConfig) { b.retry = cfg }

// Operations returns the operation table to register into
func (b *BaseConnector) Operations() *base.OperationTable { return b.ops }

// Capabilities implements base.Connector
func (b *BaseConnector) Capabilities() []types.Capability {
	return b.ops.Capabilities()
}

// ValidateParams implements base.Connector
func (b *BaseConnector) ValidateParams(req *types.OperationRequest) error {
	return b.ops.Validate(req)
}

// Execute implements base.Connector. Read-only operations are retried on
// transient failures when a retry policy is set.
func (b *BaseConnector) Execute(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	if b.closed.Load() {
		return nil, types.NewServiceUnavailableError(fmt.Sprintf("%s has been shut down", b.name), nil)
	}
	if err := b.ops.Validate(req); err != nil {
		return nil, err
	}
	op, _ := b.ops.Resolve(req.Operation)

	if !op.Capability.ReadOnly || b.retry == nil || b.retry.MaxRetries <= 0 {
		return op.Handler(ctx, req)
	}
	return RetryWithBackoff(ctx, b.retry, func() (*base.Result, error) {
		return op.Handler(ctx, req)
	})
}

// HealthCheck reports healthy until shutdown. Handlers with a backend
// override it.
func (b *BaseConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if b.closed.Load() {
		return &base.HealthStatus{Healthy: false, Error: "shut down", Timestamp: time.Now()}, nil
	}
	return &base.HealthStatus{Healthy: true, Timestamp: time.Now()}, nil
}

// OnShutdown registers a release function. Functions run once, in reverse
// registration order.
func (b *BaseConnector) OnShutdown(fn func(context.Context) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closers = append(b.closers, fn)
}

// Shutdown implements base.Connector. Only the first call releases
// anything; later calls return nil. Panics in release functions are
// recovered and reported as errors.
func (b *BaseConnector) Shutdown(ctx context.Context) error {
	var err error
	b.shutdownOnce.Do(func() {
		b.closed.Store(true)

		b.mu.Lock()
		closers := b.closers
		b.closers = nil
		b.mu.Unlock()

		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := safeClose(ctx, closers[i]); cerr != nil {
				errs = append(errs, cerr)
			}
		}
		err = errors.Join(errs...)

		fields := map[string]interface{}{"service": b.name, "type": b.connType}
		if err != nil {
			fields["error"] = err.Error()
			b.logger.Warn("", "", "service handler shut down with errors", fields)
			return
		}
		b.logger.Info("", "", "service handler shut down", fields)
	})
	return err
}

func safeClose(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during shutdown: %v", r)
		}
	}()
	return fn(ctx)
}

// IsShutdown reports whether Shutdown has been called
func (b *BaseConnector) IsShutdown() bool {
	return b.closed.Load()
}

// GetTimeout returns the configured timeout or DefaultTimeout
func (b *BaseConnector) GetTimeout() time.Duration {
	return b.config.GetTimeout(DefaultTimeout)
}

// GetStringOption retrieves a string option
func (b *BaseConnector) GetStringOption(key, defaultValue string) string {
	return b.config.StringOption(key, defaultValue)
}

// GetIntOption retrieves an integer option
func (b *BaseConnector) GetIntOption(key string, defaultValue int) int {
	return b.config.IntOption(key, defaultValue)
}

// GetBoolOption retrieves a boolean option
func (b *BaseConnector) GetBoolOption(key string, defaultValue bool) bool {
	return b.config.BoolOption(key, defaultValue)
}

// GetCredential retrieves a credential value
func (b *BaseConnector) GetCredential(key string) string {
	return b.config.Credential(key)
}
