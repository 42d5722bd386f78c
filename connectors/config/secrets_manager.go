// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/ozean-licht/ozean-licht-sub011/shared/logger"
)

// SecretsManager resolves a secret reference to key/value credentials
type SecretsManager interface {
	GetSecret(ctx context.Context, ref string) (map[string]string, error)
}

// SecretsAPI is the part of the Secrets Manager client used here
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager reads secrets from AWS Secrets Manager and caches them
type AWSSecretsManager struct {
	client SecretsAPI
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	now    func() time.Time
	logger *logger.Logger
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions configures the AWS secrets manager
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
}

// NewAWSSecretsManager creates a manager using the default AWS credential
// chain
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	var cfgOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewAWSSecretsManagerWithClient(secretsmanager.NewFromConfig(cfg), opts.CacheTTL), nil
}

// NewAWSSecretsManagerWithClient creates a manager on an existing client.
// ttl <= 0 caches for five minutes.
func NewAWSSecretsManagerWithClient(client SecretsAPI, ttl time.Duration) *AWSSecretsManager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AWSSecretsManager{
		client: client,
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		now:    time.Now,
		logger: logger.New("secrets-manager"),
	}
}

// GetSecret returns the secret as a map. JSON object secrets are decoded;
// any other string is returned under the key "value".
func (s *AWSSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	s.mu.RLock()
	entry, exists := s.cache[ref]
	s.mu.RUnlock()
	if exists && s.now().Before(entry.expiresAt) {
		return copySecret(entry.value), nil
	}

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskARN(ref), err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskARN(ref))
	}

	value := parseSecret(*result.SecretString)

	s.mu.Lock()
	s.cache[ref] = &secretCacheEntry{value: value, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()

	s.logger.Info("", "", "retrieved secret", map[string]interface{}{"secret": maskARN(ref)})
	return copySecret(value), nil
}

// InvalidateSecret drops one cached secret
func (s *AWSSecretsManager) InvalidateSecret(ref string) {
	s.mu.Lock()
	delete(s.cache, ref)
	s.mu.Unlock()
}

func parseSecret(raw string) map[string]string {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return map[string]string{"value": raw}
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			b, _ := json.Marshal(val)
			out[k] = string(b)
		}
	}
	return out
}

func copySecret(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}

// EnvSecretsManager resolves a reference by reading <REF>_<FIELD>
// variables, for local development without AWS
type EnvSecretsManager struct{}

var envSecretFields = []string{
	"USERNAME", "PASSWORD", "API_KEY", "TOKEN",
	"ACCESS_KEY", "SECRET_KEY", "VALUE",
}

// GetSecret fails when no variable for ref is set
func (EnvSecretsManager) GetSecret(_ context.Context, ref string) (map[string]string, error) {
	prefix := strings.ToUpper(strings.NewReplacer("-", "_", "/", "_", ":", "_").Replace(ref))
	credentials := make(map[string]string)
	for _, field := range envSecretFields {
		if value := os.Getenv(prefix + "_" + field); value != "" {
			credentials[strings.ToLower(field)] = value
		}
	}
	if len(credentials) == 0 {
		return nil, fmt.Errorf("no credentials found for prefix %s", prefix)
	}
	return credentials, nil
}

// LocalSecretsManager serves secrets from memory
type LocalSecretsManager struct {
	mu      sync.RWMutex
	secrets map[string]map[string]string
}

func NewLocalSecretsManager() *LocalSecretsManager {
	return &LocalSecretsManager{secrets: make(map[string]map[string]string)}
}

func (s *LocalSecretsManager) GetSecret(_ context.Context, ref string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if secret, ok := s.secrets[ref]; ok {
		return copySecret(secret), nil
	}
	return nil, fmt.Errorf("secret %s not found", maskARN(ref))
}

func (s *LocalSecretsManager) SetSecret(ref string, value map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[ref] = copySecret(value)
}
