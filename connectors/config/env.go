// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
)

// ServicesEnvVar lists the services to load from the environment as
// comma-separated name:type pairs, e.g. "github:source-control,cache:redis"
const ServicesEnvVar = "GATEWAY_SERVICES"

// EnvPrefix returns the variable prefix for a service:
// GATEWAY_SERVICE_<NAME>_ with the name upper-cased and dashes replaced
func EnvPrefix(serviceName string) string {
	name := strings.ToUpper(strings.ReplaceAll(serviceName, "-", "_"))
	return "GATEWAY_SERVICE_" + name + "_"
}

// LoadFromEnv loads one service configuration from environment variables.
// Recognized suffixes: URL, BASE_URL, TIMEOUT, MAX_RETRIES,
// RATE_LIMIT_PER_MINUTE, USERNAME, PASSWORD, API_KEY, TOKEN.
func LoadFromEnv(serviceName, serviceType string) (*base.ConnectorConfig, error) {
	if !KnownTypes[serviceType] {
		return nil, fmt.Errorf("service '%s' has invalid type '%s'", serviceName, serviceType)
	}
	prefix := EnvPrefix(serviceName)

	cfg := &base.ConnectorConfig{
		Name:          serviceName,
		Type:          serviceType,
		Enabled:       true,
		ConnectionURL: os.Getenv(prefix + "URL"),
		BaseURL:       os.Getenv(prefix + "BASE_URL"),
		Credentials:   make(map[string]string),
		Options:       make(map[string]interface{}),
		Timeout:       DefaultServiceTimeout,
	}

	if v := os.Getenv(prefix + "TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout format: %s", v)
		}
		cfg.Timeout = timeout
	}
	if v := os.Getenv(prefix + "MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid max_retries format: %s", v)
		}
		cfg.MaxRetries = n
	}
	if v := os.Getenv(prefix + "RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid rate_limit_per_minute format: %s", v)
		}
		cfg.RateLimitPerMinute = n
	}

	for _, field := range []string{"USERNAME", "PASSWORD", "API_KEY", "TOKEN"} {
		if v := os.Getenv(prefix + field); v != "" {
			cfg.Credentials[strings.ToLower(field)] = v
		}
	}
	return cfg, nil
}

// LoadServicesFromEnv loads every service named in GATEWAY_SERVICES
func LoadServicesFromEnv() ([]*base.ConnectorConfig, error) {
	raw := strings.TrimSpace(os.Getenv(ServicesEnvVar))
	if raw == "" {
		return nil, nil
	}

	var configs []*base.ConnectorConfig
	seen := make(map[string]bool)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, typ, ok := strings.Cut(pair, ":")
		if !ok || name == "" || typ == "" {
			return nil, fmt.Errorf("invalid %s entry %q, want name:type", ServicesEnvVar, pair)
		}
		if seen[name] {
			return nil, fmt.Errorf("service '%s' listed twice in %s", name, ServicesEnvVar)
		}
		seen[name] = true

		cfg, err := LoadFromEnv(name, typ)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
