// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package base

import (
	"context"
	"strconv"
	"time"

	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// Connector is the contract every service handler implements. Execute is the
// only method on the request path; the registry calls the rest at startup,
// for the catalog, for health probes and during shutdown.
type Connector interface {
	// Metadata
	Name() string // Service name requests are routed by
	Type() string // Handler type (source-control, redis, postgres, ...)

	// Capabilities returns the static operation catalog
	Capabilities() []types.Capability

	// ValidateParams fails with a ValidationError when the operation is
	// absent, unknown, or missing a required parameter
	ValidateParams(req *types.OperationRequest) error

	// Execute performs the operation against the backend
	Execute(ctx context.Context, req *types.OperationRequest) (*Result, error)

	// Lifecycle
	HealthCheck(ctx context.Context) (*HealthStatus, error)
	// Shutdown releases held resources. Calling it again is a no-op.
	Shutdown(ctx context.Context) error
}

// Result is the raw payload of a successful operation
type Result struct {
	Data interface{} `json:"data"`
	// TokensUsed overrides the capability's static token cost when non-zero
	TokensUsed int                    `json:"tokens_used,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewResult wraps data in a Result
func NewResult(data interface{}) *Result {
	return &Result{Data: data}
}

// ConnectorConfig holds the configuration for a handler instance
type ConnectorConfig struct {
	Name               string                 `json:"name" yaml:"name"`                     // Service name
	Type               string                 `json:"type" yaml:"type"`                     // Handler type
	Enabled            bool                   `json:"enabled" yaml:"enabled"`               // Disabled services are not registered
	BaseURL            string                 `json:"base_url" yaml:"base_url"`             // API root for HTTP backends
	ConnectionURL      string                 `json:"connection_url" yaml:"connection_url"` // DSN for data stores
	Credentials        map[string]string      `json:"credentials" yaml:"credentials"`       // Tokens, passwords, keys
	Options            map[string]interface{} `json:"options" yaml:"options"`               // Handler-specific options
	Timeout            time.Duration          `json:"timeout" yaml:"-"`                     // Per-operation timeout
	MaxRetries         int                    `json:"max_retries" yaml:"max_retries"`       // Retries for read-only operations
	RateLimitPerMinute int                    `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	CostPer1KTokens    float64                `json:"cost_per_1k_tokens" yaml:"cost_per_1k_tokens"`
}

// GetTimeout returns the configured timeout or the default
func (c *ConnectorConfig) GetTimeout(def time.Duration) time.Duration {
	if c == nil || c.Timeout <= 0 {
		return def
	}
	return c.Timeout
}

// Credential returns a credential value or ""
func (c *ConnectorConfig) Credential(key string) string {
	if c == nil || c.Credentials == nil {
		return ""
	}
	return c.Credentials[key]
}

// StringOption returns a string option
func (c *ConnectorConfig) StringOption(key, def string) string {
	if c == nil || c.Options == nil {
		return def
	}
	if v, ok := c.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

// IntOption returns an integer option. YAML yields int, JSON float64.
func (c *ConnectorConfig) IntOption(key string, def int) int {
	if c == nil || c.Options == nil {
		return def
	}
	switch v := c.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// BoolOption returns a boolean option
func (c *ConnectorConfig) BoolOption(key string, def bool) bool {
	if c == nil || c.Options == nil {
		return def
	}
	switch v := c.Options[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// HealthStatus represents the health of a handler
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`
	Latency   time.Duration     `json:"latency"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Error     string            `json:"error,omitempty"`
}

// ConnectorError describes a failure while building or tearing down a
// handler. Request-path failures use the gateway error taxonomy instead.
type ConnectorError struct {
	ConnectorName string
	Operation     string
	Message       string
	Cause         error
}

func (e *ConnectorError) Error() string {
	if e.Cause != nil {
		return e.ConnectorName + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.ConnectorName + "." + e.Operation + ": " + e.Message
}

func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// NewConnectorError creates a new ConnectorError
func NewConnectorError(connectorName, operation, message string, cause error) *ConnectorError {
	return &ConnectorError{
		ConnectorName: connectorName,
		Operation:     operation,
		Message:       message,
		Cause:         cause,
	}
}
