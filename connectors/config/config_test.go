// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
version: "1"
services:
  source-control:
    type: source-control
    enabled: true
    base_url: ${TEST_GITHUB_URL:-https://api.github.com}
    credentials:
      token: ${TEST_GITHUB_TOKEN}
    timeout_ms: 10000
    max_retries: 2
    cost_per_1k_tokens: 0.01
  cache:
    type: redis
    enabled: true
    connection_url: redis://localhost:6379/0
    credentials_secret: cache-secret
    credentials:
      password: inline-wins
  archive:
    type: s3
    enabled: false
`

func TestParse_ExpandsEnvAndBuildsConfigs(t *testing.T) {
	t.Setenv("TEST_GITHUB_TOKEN", "ghp_test")

	file, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	assert.Len(t, file.Services, 3)

	secrets := NewLocalSecretsManager()
	secrets.SetSecret("cache-secret", map[string]string{"username": "svc", "password": "from-secret"})

	configs, err := file.ConnectorConfigs(context.Background(), secrets)
	require.NoError(t, err)
	require.Len(t, configs, 2, "disabled services are skipped")

	// Sorted by name
	assert.Equal(t, "cache", configs[0].Name)
	assert.Equal(t, "source-control", configs[1].Name)

	cache := configs[0]
	assert.Equal(t, "redis", cache.Type)
	assert.Equal(t, "svc", cache.Credentials["username"])
	assert.Equal(t, "inline-wins", cache.Credentials["password"])
	assert.Equal(t, DefaultServiceTimeout, cache.Timeout)

	gh := configs[1]
	assert.Equal(t, "https://api.github.com", gh.BaseURL)
	assert.Equal(t, "ghp_test", gh.Credentials["token"])
	assert.Equal(t, 10*time.Second, gh.Timeout)
	assert.Equal(t, 2, gh.MaxRetries)
	assert.InDelta(t, 0.01, gh.CostPer1KTokens, 1e-9)
	assert.True(t, gh.Enabled)
}

func TestConnectorConfigs_SecretWithoutManager(t *testing.T) {
	file, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	_, err = file.ConnectorConfigs(context.Background(), nil)
	assert.ErrorContains(t, err, "no secrets manager")
}

func TestValidateConfigFile(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing version", "services: {}", "version"},
		{"missing type", "version: '1'\nservices:\n  x:\n    enabled: true", "must specify a type"},
		{"invalid type", "version: '1'\nservices:\n  x:\n    type: snowflake", "invalid type"},
		{"negative timeout", "version: '1'\nservices:\n  x:\n    type: redis\n    timeout_ms: -1", "negative"},
		{"broken yaml", "version: [", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	file, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1", file.Version)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_SET", "value")

	assert.Equal(t, "a=value", ExpandEnvVars("a=${TEST_SET}"))
	assert.Equal(t, "b=fallback", ExpandEnvVars("b=${TEST_UNSET_VAR:-fallback}"))
	assert.Equal(t, "c=", ExpandEnvVars("c=${TEST_UNSET_VAR}"))
	assert.Equal(t, "d=$TEST_SET", ExpandEnvVars("d=$TEST_SET"), "bare $VAR is left alone")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GATEWAY_SERVICE_ORDERS_DB_URL", "postgres://localhost/orders")
	t.Setenv("GATEWAY_SERVICE_ORDERS_DB_TIMEOUT", "5s")
	t.Setenv("GATEWAY_SERVICE_ORDERS_DB_MAX_RETRIES", "3")
	t.Setenv("GATEWAY_SERVICE_ORDERS_DB_PASSWORD", "secret")

	cfg, err := LoadFromEnv("orders-db", "postgres")
	require.NoError(t, err)
	assert.Equal(t, "orders-db", cfg.Name)
	assert.Equal(t, "postgres://localhost/orders", cfg.ConnectionURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "secret", cfg.Credentials["password"])

	_, err = LoadFromEnv("orders-db", "snowflake")
	assert.Error(t, err)

	t.Setenv("GATEWAY_SERVICE_ORDERS_DB_TIMEOUT", "soon")
	_, err = LoadFromEnv("orders-db", "postgres")
	assert.ErrorContains(t, err, "invalid timeout")
}

func TestLoadServicesFromEnv(t *testing.T) {
	t.Setenv(ServicesEnvVar, "")
	configs, err := LoadServicesFromEnv()
	require.NoError(t, err)
	assert.Empty(t, configs)

	t.Setenv(ServicesEnvVar, "github:source-control, cache:redis")
	t.Setenv("GATEWAY_SERVICE_CACHE_URL", "redis://localhost:6379")
	configs, err = LoadServicesFromEnv()
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "github", configs[0].Name)
	assert.Equal(t, "source-control", configs[0].Type)
	assert.Equal(t, "redis://localhost:6379", configs[1].ConnectionURL)

	t.Setenv(ServicesEnvVar, "github")
	_, err = LoadServicesFromEnv()
	assert.Error(t, err)

	t.Setenv(ServicesEnvVar, "a:redis,a:redis")
	_, err = LoadServicesFromEnv()
	assert.ErrorContains(t, err, "twice")
}

type fakeSecretsAPI struct {
	calls  int
	values map[string]string
	err    error
}

func (f *fakeSecretsAPI) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[aws.ToString(in.SecretId)]
	if !ok {
		return &secretsmanager.GetSecretValueOutput{}, nil
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestAWSSecretsManager_ParsesAndCaches(t *testing.T) {
	api := &fakeSecretsAPI{values: map[string]string{
		"arn:aws:secretsmanager:eu-central-1:1:secret:json":  `{"token":"abc","port":6379}`,
		"arn:aws:secretsmanager:eu-central-1:1:secret:plain": "just-a-key",
	}}
	sm := NewAWSSecretsManagerWithClient(api, time.Minute)
	now := time.Now()
	sm.now = func() time.Time { return now }

	got, err := sm.GetSecret(context.Background(), "arn:aws:secretsmanager:eu-central-1:1:secret:json")
	require.NoError(t, err)
	assert.Equal(t, "abc", got["token"])
	assert.Equal(t, "6379", got["port"])

	// Cached: the mutation of the returned map does not leak and no new call
	got["token"] = "mutated"
	got, err = sm.GetSecret(context.Background(), "arn:aws:secretsmanager:eu-central-1:1:secret:json")
	require.NoError(t, err)
	assert.Equal(t, "abc", got["token"])
	assert.Equal(t, 1, api.calls)

	// Expired
	now = now.Add(2 * time.Minute)
	_, err = sm.GetSecret(context.Background(), "arn:aws:secretsmanager:eu-central-1:1:secret:json")
	require.NoError(t, err)
	assert.Equal(t, 2, api.calls)

	plain, err := sm.GetSecret(context.Background(), "arn:aws:secretsmanager:eu-central-1:1:secret:plain")
	require.NoError(t, err)
	assert.Equal(t, "just-a-key", plain["value"])

	_, err = sm.GetSecret(context.Background(), "arn:aws:secretsmanager:eu-central-1:1:secret:binary")
	assert.ErrorContains(t, err, "no string value")
}

func TestAWSSecretsManager_ErrorMasksARN(t *testing.T) {
	api := &fakeSecretsAPI{err: errors.New("AccessDenied")}
	sm := NewAWSSecretsManagerWithClient(api, 0)

	_, err := sm.GetSecret(context.Background(), "arn:aws:secretsmanager:eu-central-1:123456789012:secret:prod-db")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "123456789012")
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestEnvSecretsManager(t *testing.T) {
	t.Setenv("CACHE_SECRET_PASSWORD", "pw")

	got, err := EnvSecretsManager{}.GetSecret(context.Background(), "cache-secret")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"password": "pw"}, got)

	_, err = EnvSecretsManager{}.GetSecret(context.Background(), "nothing-here")
	assert.Error(t, err)
}
