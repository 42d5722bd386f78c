// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	"github.com/ozean-licht/ozean-licht-sub011/shared/logger"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// ErrSealed is returned by Register once the registry is sealed
var ErrSealed = errors.New("registry is sealed")

type entry struct {
	connector    base.Connector
	config       *base.ConnectorConfig
	capabilities []types.Capability
	// name and alias -> capability
	index map[string]types.Capability
}

// ServiceDescriptor is the catalog entry of one service
type ServiceDescriptor struct {
	Name         string             `json:"name"`
	Type         string             `json:"type"`
	Capabilities []types.Capability `json:"capabilities"`
}

// Registry maps service names to handlers.
// Thread-safe; lock-free for reads after Seal.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	sealed  atomic.Bool
	logger  *logger.Logger
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger.New("registry"),
	}
}

// SetLogger replaces the registry logger
func (r *Registry) SetLogger(l *logger.Logger) {
	r.logger = l
}

// Register adds a handler under its Name(). The capability catalog is
// captured at registration time.
func (r *Registry) Register(connector base.Connector, config *base.ConnectorConfig) error {
	if connector == nil {
		return errors.New("connector is nil")
	}
	name := connector.Name()
	if name == "" {
		return errors.New("connector has no name")
	}
	if config == nil {
		config = &base.ConnectorConfig{Name: name, Type: connector.Type(), Enabled: true}
	}

	caps := connector.Capabilities()
	index := make(map[string]types.Capability, len(caps))
	for _, c := range caps {
		for _, n := range c.Names() {
			if _, dup := index[n]; dup {
				return fmt.Errorf("service '%s' declares operation name '%s' twice", name, n)
			}
			index[n] = c
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return ErrSealed
	}
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("service '%s' already registered", name)
	}
	r.entries[name] = &entry{
		connector:    connector,
		config:       config,
		capabilities: caps,
		index:        index,
	}

	r.logger.Info("", "", "registered service", map[string]interface{}{
		"service":    name,
		"type":       connector.Type(),
		"operations": len(caps),
	})
	return nil
}

// Seal makes the registry read-only. Calling it more than once is harmless.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed.Store(true)
}

// Sealed reports whether Seal has been called
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

func (r *Registry) lookup(name string) (*entry, bool) {
	if r.sealed.Load() {
		e, ok := r.entries[name]
		return e, ok
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// snapshot returns the entries sorted by service name
func (r *Registry) snapshot() []*entry {
	if !r.sealed.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].connector.Name() < out[j].connector.Name()
	})
	return out
}

// Get returns the handler for a service, or a NotFoundError
func (r *Registry) Get(name string) (base.Connector, error) {
	e, ok := r.lookup(name)
	if !ok {
		return nil, unknownService(name)
	}
	return e.connector, nil
}

func unknownService(name string) error {
	return types.NewNotFoundError(types.CodeUnknownService,
		fmt.Sprintf("service '%s' not found", name)).
		WithDetail("service", name)
}

// Has reports whether a service is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Config returns the configuration a service was registered with
func (r *Registry) Config(name string) (*base.ConnectorConfig, bool) {
	e, ok := r.lookup(name)
	if !ok {
		return nil, false
	}
	return e.config, true
}

// Capability resolves an operation name or alias of a service
func (r *Registry) Capability(service, operation string) (types.Capability, bool) {
	e, ok := r.lookup(service)
	if !ok {
		return types.Capability{}, false
	}
	c, ok := e.index[operation]
	return c, ok
}

// RequiredPermission returns the permission an identity needs to call
// service/operation. "" means authentication alone is enough: the
// operation does not require auth, or the service or operation is unknown
// and the request will be rejected by routing or validation instead.
func (r *Registry) RequiredPermission(service, operation string) string {
	c, ok := r.Capability(service, operation)
	if !ok || !c.RequiresAuth {
		return ""
	}
	if c.Permission != "" {
		return c.Permission
	}
	return service + ":" + c.Name
}

// List returns all registered service names, sorted
func (r *Registry) List() []string {
	entries := r.snapshot()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.connector.Name()
	}
	return names
}

// Count returns the number of registered services
func (r *Registry) Count() int {
	if !r.sealed.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	return len(r.entries)
}

// Describe returns the catalog entry of one service
func (r *Registry) Describe(name string) (ServiceDescriptor, error) {
	e, ok := r.lookup(name)
	if !ok {
		return ServiceDescriptor{}, unknownService(name)
	}
	return describe(e), nil
}

// Catalog returns the catalog entries of every service, sorted by name
func (r *Registry) Catalog() []ServiceDescriptor {
	entries := r.snapshot()
	out := make([]ServiceDescriptor, len(entries))
	for i, e := range entries {
		out[i] = describe(e)
	}
	return out
}

func describe(e *entry) ServiceDescriptor {
	caps := make([]types.Capability, len(e.capabilities))
	copy(caps, e.capabilities)
	return ServiceDescriptor{
		Name:         e.connector.Name(),
		Type:         e.connector.Type(),
		Capabilities: caps,
	}
}

// HealthCheck probes every handler concurrently and returns the status by
// service name. A handler that returns an error is reported unhealthy.
func (r *Registry) HealthCheck(ctx context.Context) map[string]*base.HealthStatus {
	entries := r.snapshot()
	results := make(map[string]*base.HealthStatus, len(entries))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, e := range entries {
		wg.Add(1)
		go func(c base.Connector) {
			defer wg.Done()
			status := r.probe(ctx, c)
			mu.Lock()
			results[c.Name()] = status
			mu.Unlock()
		}(e.connector)
	}
	wg.Wait()
	return results
}

func (r *Registry) probe(ctx context.Context, c base.Connector) (status *base.HealthStatus) {
	defer func() {
		if rec := recover(); rec != nil {
			status = &base.HealthStatus{Healthy: false, Error: fmt.Sprintf("health check panicked: %v", rec), Timestamp: time.Now()}
		}
	}()

	status, err := c.HealthCheck(ctx)
	if err != nil {
		r.logger.Warn("", "", "health check failed", map[string]interface{}{
			"service": c.Name(),
			"error":   err.Error(),
		})
		return &base.HealthStatus{Healthy: false, Error: err.Error(), Timestamp: time.Now()}
	}
	if status == nil {
		return &base.HealthStatus{Healthy: false, Error: "no status reported", Timestamp: time.Now()}
	}
	return status
}

// Healthy reports whether every handler is healthy
func Healthy(statuses map[string]*base.HealthStatus) bool {
	for _, s := range statuses {
		if s == nil || !s.Healthy {
			return false
		}
	}
	return true
}

// ShutdownAll shuts every handler down and returns the joined errors.
// Useful for graceful shutdown.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	r.logger.Info("", "", "shutting down all services", nil)

	var errs []error
	for _, e := range r.snapshot() {
		name := e.connector.Name()
		if err := e.connector.Shutdown(ctx); err != nil {
			r.logger.Error("", "", "error shutting down service", map[string]interface{}{
				"service": name,
				"error":   err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
