// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ozean-licht/ozean-licht-sub011/agent/ratelimit"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	svcconfig "github.com/ozean-licht/ozean-licht-sub011/connectors/config"
)

// Deployment environments
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// MinSecretLength is the shortest accepted signing secret in bytes
const MinSecretLength = 32

// DefaultMaxBodyBytes caps request bodies (1 MiB)
const DefaultMaxBodyBytes = 1 << 20

// Config is the gateway process configuration. It is loaded once at startup
// and passed to the components that need it.
type Config struct {
	Port        string
	Environment string
	DevMode     bool

	SigningSecret    []byte
	SigningSecretARN string
	TokenIssuer      string
	TokenTTL         time.Duration

	RateLimit ratelimit.Config
	RedisURL  string

	LogLevel           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxBodyBytes       int64
	CORSAllowedOrigins []string

	ServiceName  string
	OTLPEndpoint string
	OTLPInsecure bool

	MetricsKafkaBrokers []string
	MetricsKafkaTopic   string

	AWSRegion string

	// ConfigFile is the YAML file holding the gateway and services
	// sections; empty means services come from the environment only
	ConfigFile string
}

// fileSettings is the optional "gateway" section of the YAML file. Values
// set there apply when the matching environment variable is unset.
type fileSettings struct {
	Gateway struct {
		Port               string   `yaml:"port"`
		Environment        string   `yaml:"environment"`
		TokenIssuer        string   `yaml:"token_issuer"`
		TokenTTL           string   `yaml:"token_ttl"`
		LogLevel           string   `yaml:"log_level"`
		RequestTimeout     string   `yaml:"request_timeout"`
		MaxBodyBytes       int64    `yaml:"max_body_bytes"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		RedisURL           string   `yaml:"redis_url"`
		RateLimit          struct {
			Enforce           *bool  `yaml:"enforce"`
			GlobalWindow      string `yaml:"global_window"`
			GlobalMax         int    `yaml:"global_max"`
			ServiceDefaultMax int    `yaml:"service_default_max"`
			BurstMax          int    `yaml:"burst_max"`
		} `yaml:"rate_limit"`
	} `yaml:"gateway"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Port:               "8080",
		Environment:        EnvDevelopment,
		TokenIssuer:        "agent-gateway",
		TokenTTL:           24 * time.Hour,
		RateLimit:          ratelimit.DefaultConfig(),
		LogLevel:           "info",
		RequestTimeout:     30 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		MaxBodyBytes:       DefaultMaxBodyBytes,
		CORSAllowedOrigins: []string{"*"},
		ServiceName:        "agent-gateway",
		OTLPInsecure:       true,
		MetricsKafkaTopic:  "gateway-usage",
	}
}

// Load reads an optional .env file, the optional YAML file named by
// GATEWAY_CONFIG_FILE and the environment, resolves the signing secret and
// validates the result.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	cfg.ConfigFile = os.Getenv("GATEWAY_CONFIG_FILE")
	if cfg.ConfigFile != "" {
		data, err := os.ReadFile(cfg.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfg.ConfigFile, err)
		}
		if err := cfg.applyFile(data); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.resolveSecret(ctx, nil); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(data []byte) error {
	var fs fileSettings
	if err := yaml.Unmarshal([]byte(svcconfig.ExpandEnvVars(string(data))), &fs); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	g := fs.Gateway

	setString(&c.Port, g.Port)
	setString(&c.Environment, g.Environment)
	setString(&c.TokenIssuer, g.TokenIssuer)
	setString(&c.LogLevel, g.LogLevel)
	setString(&c.RedisURL, g.RedisURL)
	if len(g.CORSAllowedOrigins) > 0 {
		c.CORSAllowedOrigins = g.CORSAllowedOrigins
	}
	if g.MaxBodyBytes != 0 {
		c.MaxBodyBytes = g.MaxBodyBytes
	}

	var errs []error
	if g.TokenTTL != "" {
		d, err := time.ParseDuration(g.TokenTTL)
		errs = append(errs, wrapField("gateway.token_ttl", err))
		c.TokenTTL = d
	}
	if g.RequestTimeout != "" {
		d, err := time.ParseDuration(g.RequestTimeout)
		errs = append(errs, wrapField("gateway.request_timeout", err))
		c.RequestTimeout = d
	}

	rl := g.RateLimit
	if rl.Enforce != nil {
		c.RateLimit.Enforce = *rl.Enforce
	}
	if rl.GlobalWindow != "" {
		d, err := time.ParseDuration(rl.GlobalWindow)
		errs = append(errs, wrapField("gateway.rate_limit.global_window", err))
		c.RateLimit.GlobalWindow = d
	}
	setInt(&c.RateLimit.GlobalMax, rl.GlobalMax)
	setInt(&c.RateLimit.ServiceDefaultMax, rl.ServiceDefaultMax)
	setInt(&c.RateLimit.BurstMax, rl.BurstMax)

	return errors.Join(errs...)
}

func (c *Config) applyEnv() error {
	env := &envReader{}

	c.Port = getEnv("PORT", c.Port)
	c.Environment = strings.ToLower(getEnv("GATEWAY_ENV", c.Environment))
	c.DevMode = env.bool("GATEWAY_DEV_MODE", c.DevMode)
	if s := os.Getenv("GATEWAY_SIGNING_SECRET"); s != "" {
		c.SigningSecret = []byte(s)
	}
	c.SigningSecretARN = getEnv("GATEWAY_SIGNING_SECRET_ARN", c.SigningSecretARN)
	c.TokenIssuer = getEnv("GATEWAY_TOKEN_ISSUER", c.TokenIssuer)
	c.TokenTTL = env.duration("GATEWAY_TOKEN_TTL", c.TokenTTL)

	c.RateLimit.Enforce = env.bool("RATE_LIMIT_ENFORCE", c.RateLimit.Enforce)
	c.RateLimit.GlobalWindow = env.duration("RATE_LIMIT_GLOBAL_WINDOW", c.RateLimit.GlobalWindow)
	c.RateLimit.GlobalMax = env.int("RATE_LIMIT_GLOBAL_MAX", c.RateLimit.GlobalMax)
	c.RateLimit.ServiceDefaultMax = env.int("RATE_LIMIT_SERVICE_DEFAULT_MAX", c.RateLimit.ServiceDefaultMax)
	c.RateLimit.BurstMax = env.int("RATE_LIMIT_BURST_MAX", c.RateLimit.BurstMax)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.RequestTimeout = env.duration("REQUEST_TIMEOUT", c.RequestTimeout)
	c.ShutdownTimeout = env.duration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.MaxBodyBytes = int64(env.int("MAX_BODY_BYTES", int(c.MaxBodyBytes)))
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = splitList(v)
	}

	c.ServiceName = getEnv("OTEL_SERVICE_NAME", c.ServiceName)
	c.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)
	c.OTLPInsecure = env.bool("OTEL_EXPORTER_OTLP_INSECURE", c.OTLPInsecure)

	if v := os.Getenv("METRICS_KAFKA_BROKERS"); v != "" {
		c.MetricsKafkaBrokers = splitList(v)
	}
	c.MetricsKafkaTopic = getEnv("METRICS_KAFKA_TOPIC", c.MetricsKafkaTopic)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)

	return env.err()
}

// resolveSecret fetches the signing secret from the secrets manager when
// only an ARN is configured. A nil manager uses AWS Secrets Manager.
func (c *Config) resolveSecret(ctx context.Context, secrets svcconfig.SecretsManager) error {
	if len(c.SigningSecret) > 0 || c.SigningSecretARN == "" {
		return nil
	}
	if secrets == nil {
		sm, err := svcconfig.NewAWSSecretsManager(ctx, svcconfig.AWSSecretsManagerOptions{Region: c.AWSRegion})
		if err != nil {
			return fmt.Errorf("failed to create secrets manager: %w", err)
		}
		secrets = sm
	}

	values, err := secrets.GetSecret(ctx, c.SigningSecretARN)
	if err != nil {
		return fmt.Errorf("failed to resolve signing secret: %w", err)
	}
	for _, key := range []string{"signing_secret", "secret", "value"} {
		if v := values[key]; v != "" {
			c.SigningSecret = []byte(v)
			return nil
		}
	}
	return errors.New("signing secret not found in secret value (want key signing_secret)")
}

// Validate refuses configurations the gateway must not start with
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("GATEWAY_ENV must be development, staging or production, got %q", c.Environment))
	}
	if c.DevMode && c.Environment == EnvProduction {
		errs = append(errs, errors.New("GATEWAY_DEV_MODE must not be enabled in production"))
	}
	if len(c.SigningSecret) == 0 && !c.DevMode {
		errs = append(errs, errors.New("GATEWAY_SIGNING_SECRET or GATEWAY_SIGNING_SECRET_ARN is required outside development mode"))
	}
	if n := len(c.SigningSecret); n > 0 && n < MinSecretLength {
		errs = append(errs, fmt.Errorf("signing secret must be at least %d bytes, got %d", MinSecretLength, n))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("GATEWAY_TOKEN_TTL must be positive"))
	}
	if err := c.RateLimit.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_BODY_BYTES must be positive"))
	}
	if len(c.MetricsKafkaBrokers) > 0 && c.MetricsKafkaTopic == "" {
		errs = append(errs, errors.New("METRICS_KAFKA_TOPIC is required when METRICS_KAFKA_BROKERS is set"))
	}
	return errors.Join(errs...)
}

// Services loads the service configurations: the services section of the
// config file when one is set, plus any service declared in the environment
// under a name the file does not use.
func (c *Config) Services(ctx context.Context, secrets svcconfig.SecretsManager) ([]*base.ConnectorConfig, error) {
	var configs []*base.ConnectorConfig
	seen := make(map[string]bool)

	if c.ConfigFile != "" {
		file, err := svcconfig.LoadFile(c.ConfigFile)
		if err != nil {
			return nil, err
		}
		fromFile, err := file.ConnectorConfigs(ctx, secrets)
		if err != nil {
			return nil, err
		}
		for _, sc := range fromFile {
			seen[sc.Name] = true
			configs = append(configs, sc)
		}
	}

	fromEnv, err := svcconfig.LoadServicesFromEnv()
	if err != nil {
		return nil, err
	}
	for _, sc := range fromEnv {
		if seen[sc.Name] {
			continue
		}
		configs = append(configs, sc)
	}
	return configs, nil
}

// IsProduction reports whether the gateway runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed variables and collects every parse error so a
// misconfigured deployment reports all of them at once
type envReader struct {
	errs []error
}

func (e *envReader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (e *envReader) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func wrapField(field string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", field, err)
}
