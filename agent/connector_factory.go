// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ozean-licht/ozean-licht-sub011/agent/ratelimit"
	"github.com/ozean-licht/ozean-licht-sub011/common/usage"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/blobstore"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/cassandra"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/kafka"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/mongodb"
	redisconnector "github.com/ozean-licht/ozean-licht-sub011/connectors/redis"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/registry"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/s3"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/slack"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/sourcecontrol"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/sqlstore"
	"github.com/ozean-licht/ozean-licht-sub011/shared/logger"
)

// ConnectorCreator builds a handler from its service configuration
type ConnectorCreator func(ctx context.Context, cfg *base.ConnectorConfig) (base.Connector, error)

// ConnectorFactory maps service types to handler constructors
type ConnectorFactory struct {
	mu       sync.RWMutex
	creators map[string]ConnectorCreator
	logger   *logger.Logger
}

// NewConnectorFactory returns an empty factory
func NewConnectorFactory() *ConnectorFactory {
	return &ConnectorFactory{
		creators: make(map[string]ConnectorCreator),
		logger:   logger.New("connector-factory"),
	}
}

// DefaultConnectorFactory returns a factory with every built-in handler type
func DefaultConnectorFactory() *ConnectorFactory {
	f := NewConnectorFactory()
	f.RegisterBuiltins()
	return f
}

// Register adds a creator; registering a type twice fails
func (f *ConnectorFactory) Register(serviceType string, creator ConnectorCreator) error {
	if serviceType == "" || creator == nil {
		return errors.New("service type and creator are required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.creators[serviceType]; exists {
		return fmt.Errorf("service type '%s' already registered", serviceType)
	}
	f.creators[serviceType] = creator
	return nil
}

// RegisterOrReplace adds or overwrites a creator
func (f *ConnectorFactory) RegisterOrReplace(serviceType string, creator ConnectorCreator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[serviceType] = creator
}

// RegisterBuiltins registers the handler types shipped with the gateway
func (f *ConnectorFactory) RegisterBuiltins() {
	f.RegisterOrReplace(sourcecontrol.Type, func(_ context.Context, cfg *base.ConnectorConfig) (base.Connector, error) {
		return sourcecontrol.New(cfg)
	})
	f.RegisterOrReplace(slack.Type, func(_ context.Context, cfg *base.ConnectorConfig) (base.Connector, error) {
		return slack.New(cfg)
	})
	f.RegisterOrReplace(kafka.Type, func(_ context.Context, cfg *base.ConnectorConfig) (base.Connector, error) {
		return kafka.New(cfg)
	})
	f.RegisterOrReplace(redisconnector.Type, func(_ context.Context, cfg *base.ConnectorConfig) (base.Connector, error) {
		return redisconnector.New(cfg)
	})
	sql := func(_ context.Context, cfg *base.ConnectorConfig) (base.Connector, error) {
		return sqlstore.New(cfg)
	}
	f.RegisterOrReplace(sqlstore.TypePostgres, sql)
	f.RegisterOrReplace(sqlstore.TypeMySQL, sql)
	f.RegisterOrReplace(mongodb.Type, func(_ context.Context, cfg *base.ConnectorConfig) (base.Connector, error) {
		return mongodb.New(cfg)
	})
	f.RegisterOrReplace(s3.Type, func(ctx context.Context, cfg *base.ConnectorConfig) (base.Connector, error) {
		return s3.New(ctx, cfg)
	})
	f.RegisterOrReplace(blobstore.AzureType, func(_ context.Context, cfg *base.ConnectorConfig) (base.Connector, error) {
		return blobstore.NewAzure(cfg)
	})
	f.RegisterOrReplace(blobstore.GCSType, func(ctx context.Context, cfg *base.ConnectorConfig) (base.Connector, error) {
		return blobstore.NewGCS(ctx, cfg)
	})
	f.RegisterOrReplace(cassandra.Type, func(_ context.Context, cfg *base.ConnectorConfig) (base.Connector, error) {
		return cassandra.New(cfg)
	})

	f.logger.Debug("", "", "registered built-in service types", map[string]interface{}{
		"types": f.RegisteredTypes(),
	})
}

// Create builds the handler for cfg.Type
func (f *ConnectorFactory) Create(ctx context.Context, cfg *base.ConnectorConfig) (base.Connector, error) {
	if cfg == nil {
		return nil, errors.New("service config is nil")
	}
	f.mu.RLock()
	creator, exists := f.creators[cfg.Type]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no creator registered for service type: %s", cfg.Type)
	}
	conn, err := creator(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("service '%s': %w", cfg.Name, err)
	}
	return conn, nil
}

// IsRegistered reports whether a creator exists for serviceType
func (f *ConnectorFactory) IsRegistered(serviceType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, exists := f.creators[serviceType]
	return exists
}

// RegisteredTypes returns the known service types, sorted
func (f *ConnectorFactory) RegisteredTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.creators))
	for t := range f.creators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// BuildRegistry creates a handler per enabled service config, registers it
// and seals the registry. Service cost rates are written into pricing. On
// failure every handler created so far is shut down.
func (f *ConnectorFactory) BuildRegistry(ctx context.Context, configs []*base.ConnectorConfig, pricing *usage.Pricing) (*registry.Registry, error) {
	reg := registry.NewRegistry()

	var created []base.Connector
	fail := func(err error) (*registry.Registry, error) {
		for _, c := range created {
			_ = c.Shutdown(ctx)
		}
		return nil, err
	}

	for _, cfg := range configs {
		if cfg == nil || !cfg.Enabled {
			continue
		}
		conn, err := f.Create(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		created = append(created, conn)

		if err := reg.Register(conn, cfg); err != nil {
			return fail(err)
		}
		if pricing != nil && cfg.CostPer1KTokens > 0 {
			pricing.SetRateUSD(cfg.Name, cfg.CostPer1KTokens)
		}
	}

	reg.Seal()
	f.logger.Info("", "", "service registry built", map[string]interface{}{
		"services": reg.List(),
	})
	return reg, nil
}

// ServiceRateLimits returns the per-service limiter overrides declared by
// rate_limit_per_minute
func ServiceRateLimits(configs []*base.ConnectorConfig) map[string]int {
	out := make(map[string]int)
	for _, cfg := range configs {
		if cfg != nil && cfg.Enabled && cfg.RateLimitPerMinute > 0 {
			out[cfg.Name] = cfg.RateLimitPerMinute
		}
	}
	return out
}

// applyServiceLimits merges service overrides into the limiter config
// without replacing overrides set explicitly
func applyServiceLimits(cfg ratelimit.Config, configs []*base.ConnectorConfig) ratelimit.Config {
	overrides := make(map[string]int, len(cfg.ServiceOverrides))
	for name, max := range ServiceRateLimits(configs) {
		overrides[name] = max
	}
	for name, max := range cfg.ServiceOverrides {
		overrides[name] = max
	}
	cfg.ServiceOverrides = overrides
	return cfg
}
