// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcconfig "github.com/ozean-licht/ozean-licht-sub011/connectors/config"
)

var testSecret = strings.Repeat("s", MinSecretLength)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GATEWAY_CONFIG_FILE", "PORT", "GATEWAY_ENV", "GATEWAY_DEV_MODE",
		"GATEWAY_SIGNING_SECRET", "GATEWAY_SIGNING_SECRET_ARN", "GATEWAY_TOKEN_ISSUER",
		"GATEWAY_TOKEN_TTL", "RATE_LIMIT_ENFORCE", "RATE_LIMIT_GLOBAL_WINDOW",
		"RATE_LIMIT_GLOBAL_MAX", "RATE_LIMIT_SERVICE_DEFAULT_MAX", "RATE_LIMIT_BURST_MAX",
		"REDIS_URL", "LOG_LEVEL", "REQUEST_TIMEOUT", "SHUTDOWN_TIMEOUT", "MAX_BODY_BYTES",
		"CORS_ALLOWED_ORIGINS", "OTEL_SERVICE_NAME", "OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_EXPORTER_OTLP_INSECURE", "METRICS_KAFKA_BROKERS", "METRICS_KAFKA_TOPIC",
		"AWS_REGION", svcconfig.ServicesEnvVar,
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GATEWAY_SIGNING_SECRET", testSecret)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, []byte(testSecret), cfg.SigningSecret)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.True(t, cfg.RateLimit.Enforce)
	assert.Equal(t, time.Minute, cfg.RateLimit.GlobalWindow)
	assert.Equal(t, 100, cfg.RateLimit.GlobalMax)
	assert.Equal(t, 100, cfg.RateLimit.ServiceDefaultMax)
	assert.Equal(t, 20, cfg.RateLimit.BurstMax)
	assert.Equal(t, int64(DefaultMaxBodyBytes), cfg.MaxBodyBytes)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.OTLPEndpoint)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GATEWAY_SIGNING_SECRET", testSecret)
	t.Setenv("PORT", "9090")
	t.Setenv("GATEWAY_ENV", "Staging")
	t.Setenv("GATEWAY_TOKEN_TTL", "2h")
	t.Setenv("RATE_LIMIT_ENFORCE", "false")
	t.Setenv("RATE_LIMIT_GLOBAL_WINDOW", "30s")
	t.Setenv("RATE_LIMIT_GLOBAL_MAX", "500")
	t.Setenv("RATE_LIMIT_BURST_MAX", "5")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("MAX_BODY_BYTES", "2048")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("METRICS_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, EnvStaging, cfg.Environment)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.False(t, cfg.RateLimit.Enforce)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.GlobalWindow)
	assert.Equal(t, 500, cfg.RateLimit.GlobalMax)
	assert.Equal(t, 5, cfg.RateLimit.BurstMax)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, int64(2048), cfg.MaxBodyBytes)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.MetricsKafkaBrokers)
}

func TestLoad_ReportsEveryParseError(t *testing.T) {
	clearEnv(t)
	t.Setenv("GATEWAY_SIGNING_SECRET", testSecret)
	t.Setenv("RATE_LIMIT_GLOBAL_MAX", "lots")
	t.Setenv("GATEWAY_DEV_MODE", "maybe")

	_, err := Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_GLOBAL_MAX")
	assert.Contains(t, err.Error(), "GATEWAY_DEV_MODE")
}

func TestLoad_FileSettingsYieldToEnvironment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	content := `
version: "1"
gateway:
  port: "7070"
  token_issuer: ${TEST_ISSUER:-file-issuer}
  rate_limit:
    enforce: false
    global_max: 42
    burst_max: 7
services:
  github:
    type: source-control
    enabled: true
    base_url: https://api.github.com
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("GATEWAY_CONFIG_FILE", path)
	t.Setenv("GATEWAY_SIGNING_SECRET", testSecret)
	t.Setenv("RATE_LIMIT_BURST_MAX", "9")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "file-issuer", cfg.TokenIssuer)
	assert.False(t, cfg.RateLimit.Enforce)
	assert.Equal(t, 42, cfg.RateLimit.GlobalMax)
	assert.Equal(t, 9, cfg.RateLimit.BurstMax, "environment wins over the file")

	services, err := cfg.Services(context.Background(), svcconfig.NewLocalSecretsManager())
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "github", services[0].Name)
	assert.Equal(t, "source-control", services[0].Type)
}

func TestServices_MergesEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(svcconfig.ServicesEnvVar, "cache:redis")
	t.Setenv("GATEWAY_SERVICE_CACHE_URL", "redis://localhost:6379/0")

	cfg := Default()
	services, err := cfg.Services(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "cache", services[0].Name)
	assert.Equal(t, "redis://localhost:6379/0", services[0].ConnectionURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing secret", func(c *Config) { c.SigningSecret = nil }, "GATEWAY_SIGNING_SECRET"},
		{"dev mode without secret", func(c *Config) { c.SigningSecret = nil; c.DevMode = true }, ""},
		{"short secret", func(c *Config) { c.SigningSecret = []byte("short") }, "at least 32 bytes"},
		{"dev mode in production", func(c *Config) { c.DevMode = true; c.Environment = EnvProduction }, "production"},
		{"unknown environment", func(c *Config) { c.Environment = "qa" }, "GATEWAY_ENV"},
		{"zero global max", func(c *Config) { c.RateLimit.GlobalMax = 0 }, "rate limit"},
		{"negative burst", func(c *Config) { c.RateLimit.BurstMax = -1 }, "rate limit"},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, "REQUEST_TIMEOUT"},
		{"zero body limit", func(c *Config) { c.MaxBodyBytes = 0 }, "MAX_BODY_BYTES"},
		{"kafka without topic", func(c *Config) {
			c.MetricsKafkaBrokers = []string{"k:9092"}
			c.MetricsKafkaTopic = ""
		}, "METRICS_KAFKA_TOPIC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.SigningSecret = []byte(testSecret)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolveSecret(t *testing.T) {
	arn := "arn:aws:secretsmanager:eu-central-1:123456789012:secret:gateway"
	secrets := svcconfig.NewLocalSecretsManager()
	secrets.SetSecret(arn, map[string]string{"signing_secret": testSecret})

	cfg := Default()
	cfg.SigningSecretARN = arn
	require.NoError(t, cfg.resolveSecret(context.Background(), secrets))
	assert.Equal(t, []byte(testSecret), cfg.SigningSecret)

	t.Run("explicit secret wins", func(t *testing.T) {
		cfg := Default()
		cfg.SigningSecret = []byte("explicit")
		cfg.SigningSecretARN = arn
		require.NoError(t, cfg.resolveSecret(context.Background(), secrets))
		assert.Equal(t, []byte("explicit"), cfg.SigningSecret)
	})

	t.Run("missing key", func(t *testing.T) {
		other := svcconfig.NewLocalSecretsManager()
		other.SetSecret(arn, map[string]string{"username": "x"})
		cfg := Default()
		cfg.SigningSecretARN = arn
		assert.Error(t, cfg.resolveSecret(context.Background(), other))
	})

	t.Run("unknown secret", func(t *testing.T) {
		cfg := Default()
		cfg.SigningSecretARN = arn + "-missing"
		assert.Error(t, cfg.resolveSecret(context.Background(), secrets))
	})
}
