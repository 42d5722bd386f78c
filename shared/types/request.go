// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// OperationRequest is the normalized unit of work handed to a service handler
type OperationRequest struct {
	Service   string                 `json:"service"`
	Operation string                 `json:"operation"`
	Args      []string               `json:"args"`
	Options   map[string]interface{} `json:"options"`

	// Transport metadata, used for logs and metrics only
	RequestID string `json:"requestId,omitempty"`
	AgentID   string `json:"agentId,omitempty"`
}

// Arg returns the i-th positional argument or "" when absent
func (r *OperationRequest) Arg(i int) string {
	if i < 0 || i >= len(r.Args) {
		return ""
	}
	return r.Args[i]
}

// HasOption reports whether a non-nil option value was supplied
func (r *OperationRequest) HasOption(name string) bool {
	if r.Options == nil {
		return false
	}
	v, ok := r.Options[name]
	return ok && v != nil
}

// Option returns the raw option value
func (r *OperationRequest) Option(name string) (interface{}, bool) {
	if r.Options == nil {
		return nil, false
	}
	v, ok := r.Options[name]
	return v, ok && v != nil
}

// StringOption returns a string option, formatting scalars if needed
func (r *OperationRequest) StringOption(name, def string) string {
	v, ok := r.Option(name)
	if !ok {
		return def
	}
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// IntOption returns an integer option. Values decoded from JSON arrive as
// float64 and values from query strings arrive as strings; both are accepted.
func (r *OperationRequest) IntOption(name string, def int) int {
	v, ok := r.Option(name)
	if !ok {
		return def
	}
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return n
		}
	}
	return def
}

// BoolOption returns a boolean option
func (r *OperationRequest) BoolOption(name string, def bool) bool {
	v, ok := r.Option(name)
	if !ok {
		return def
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return def
}

// Parameter describes one input of an operation
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	// Positional parameters bind to Args in declaration order
	Positional bool `json:"positional"`
}

// Capability is the static descriptor of one operation a handler supports
type Capability struct {
	Name         string      `json:"name"`
	Aliases      []string    `json:"aliases,omitempty"`
	Description  string      `json:"description"`
	Parameters   []Parameter `json:"parameters"`
	RequiresAuth bool        `json:"requiresAuth"`
	TokenCost    int         `json:"tokenCost"`
	Permission   string      `json:"permission,omitempty"`
	ReadOnly     bool        `json:"readOnly"`
}

// Names returns the canonical name followed by its aliases
func (c Capability) Names() []string {
	names := make([]string, 0, len(c.Aliases)+1)
	names = append(names, c.Name)
	return append(names, c.Aliases...)
}
