// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
)

// KnownTypes lists the service types the gateway can build handlers for
var KnownTypes = map[string]bool{
	"source-control": true,
	"slack":          true,
	"kafka":          true,
	"redis":          true,
	"postgres":       true,
	"mysql":          true,
	"mongodb":        true,
	"s3":             true,
	"azure-blob":     true,
	"gcs":            true,
	"cassandra":      true,
}

// ConfigFile represents the structure of a services configuration file
type ConfigFile struct {
	Version  string                       `yaml:"version"`
	Services map[string]ServiceFileConfig `yaml:"services,omitempty"`
}

// ServiceFileConfig is one entry of the services section
type ServiceFileConfig struct {
	Type               string                 `yaml:"type"`
	Enabled            bool                   `yaml:"enabled"`
	Description        string                 `yaml:"description,omitempty"`
	BaseURL            string                 `yaml:"base_url,omitempty"`
	ConnectionURL      string                 `yaml:"connection_url,omitempty"`
	Credentials        map[string]string      `yaml:"credentials,omitempty"`
	CredentialsSecret  string                 `yaml:"credentials_secret,omitempty"`
	Options            map[string]interface{} `yaml:"options,omitempty"`
	TimeoutMs          int                    `yaml:"timeout_ms,omitempty"`
	MaxRetries         int                    `yaml:"max_retries,omitempty"`
	RateLimitPerMinute int                    `yaml:"rate_limit_per_minute,omitempty"`
	CostPer1KTokens    float64                `yaml:"cost_per_1k_tokens,omitempty"`
}

// DefaultServiceTimeout applies when timeout_ms is not set
const DefaultServiceTimeout = 30 * time.Second

// LoadFile reads, expands and validates a services configuration file
func LoadFile(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands environment references in data and decodes it
func Parse(data []byte) (*ConfigFile, error) {
	expanded := ExpandEnvVars(string(data))

	var cfg ConfigFile
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := ValidateConfigFile(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateConfigFile checks version, types and numeric ranges
func ValidateConfigFile(cfg *ConfigFile) error {
	if cfg.Version == "" {
		return fmt.Errorf("config file must specify a version")
	}
	for name, svc := range cfg.Services {
		if svc.Type == "" {
			return fmt.Errorf("service '%s' must specify a type", name)
		}
		if !KnownTypes[svc.Type] {
			return fmt.Errorf("service '%s' has invalid type '%s'", name, svc.Type)
		}
		if svc.TimeoutMs < 0 || svc.MaxRetries < 0 || svc.RateLimitPerMinute < 0 || svc.CostPer1KTokens < 0 {
			return fmt.Errorf("service '%s' has a negative timeout, retry, rate limit or cost", name)
		}
	}
	return nil
}

// ConnectorConfigs returns the enabled services sorted by name. Services
// with a credentials_secret have it resolved through secrets; inline
// credentials win over secret values with the same key.
func (f *ConfigFile) ConnectorConfigs(ctx context.Context, secrets SecretsManager) ([]*base.ConnectorConfig, error) {
	names := make([]string, 0, len(f.Services))
	for name, svc := range f.Services {
		if svc.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	configs := make([]*base.ConnectorConfig, 0, len(names))
	for _, name := range names {
		svc := f.Services[name]

		credentials := make(map[string]string)
		if svc.CredentialsSecret != "" {
			if secrets == nil {
				return nil, fmt.Errorf("service '%s' references a secret but no secrets manager is configured", name)
			}
			resolved, err := secrets.GetSecret(ctx, svc.CredentialsSecret)
			if err != nil {
				return nil, fmt.Errorf("service '%s': %w", name, err)
			}
			for k, v := range resolved {
				credentials[k] = v
			}
		}
		for k, v := range svc.Credentials {
			credentials[k] = v
		}

		timeout := time.Duration(svc.TimeoutMs) * time.Millisecond
		if timeout == 0 {
			timeout = DefaultServiceTimeout
		}
		options := svc.Options
		if options == nil {
			options = make(map[string]interface{})
		}

		configs = append(configs, &base.ConnectorConfig{
			Name:               name,
			Type:               svc.Type,
			Enabled:            true,
			BaseURL:            svc.BaseURL,
			ConnectionURL:      svc.ConnectionURL,
			Credentials:        credentials,
			Options:            options,
			Timeout:            timeout,
			MaxRetries:         svc.MaxRetries,
			RateLimitPerMinute: svc.RateLimitPerMinute,
			CostPer1KTokens:    svc.CostPer1KTokens,
		})
	}
	return configs, nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnvVars replaces ${VAR} and ${VAR:-default}. Undefined variables
// without a default expand to "".
func ExpandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		name := match[2 : len(match)-1]
		def := ""
		if idx := strings.Index(name, ":-"); idx != -1 {
			def = name[idx+2:]
			name = name[:idx]
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return def
	})
}
