// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ozean-licht/ozean-licht-sub011/agent/auth"
	"github.com/ozean-licht/ozean-licht-sub011/agent/config"
	"github.com/ozean-licht/ozean-licht-sub011/agent/ratelimit"
	"github.com/ozean-licht/ozean-licht-sub011/agent/telemetry"
	"github.com/ozean-licht/ozean-licht-sub011/common/usage"
	svcconfig "github.com/ozean-licht/ozean-licht-sub011/connectors/config"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/registry"
	"github.com/ozean-licht/ozean-licht-sub011/shared/logger"
)

// AppOptions replaces collaborators NewApp would otherwise build
type AppOptions struct {
	Factory *ConnectorFactory
	Secrets svcconfig.SecretsManager
	// Registerer receives the usage metrics; nil uses a fresh registry
	// gathered together with the default one
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// Sink is added to the usage fan-out (tests)
	Sink usage.Sink
}

// App is a fully wired gateway process
type App struct {
	cfg      *config.Config
	server   *Server
	registry *registry.Registry
	logger   *logger.Logger

	async           *usage.AsyncSink
	kafka           *usage.KafkaSink
	store           ratelimit.Store
	shutdownTracing telemetry.ShutdownFunc

	closeOnce sync.Once
	closeErr  error
}

// Run loads the configuration, builds the gateway and serves until ctx is
// cancelled, then shuts down gracefully.
func Run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	app, err := NewApp(ctx, cfg, AppOptions{})
	if err != nil {
		return err
	}
	return app.Serve(ctx)
}

// NewApp builds every component from cfg. Anything created before a
// failure is released.
func NewApp(ctx context.Context, cfg *config.Config, opts AppOptions) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger.New("gateway")}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.shutdownTracing, err = telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return nil, err
	}

	secrets := opts.Secrets
	if secrets == nil {
		if secrets, err = defaultSecrets(ctx, cfg); err != nil {
			return nil, err
		}
	}
	services, err := cfg.Services(ctx, secrets)
	if err != nil {
		return nil, fmt.Errorf("failed to load services: %w", err)
	}

	factory := opts.Factory
	if factory == nil {
		factory = DefaultConnectorFactory()
	}
	pricing := usage.NewPricing()
	a.registry, err = factory.BuildRegistry(ctx, services, pricing)
	if err != nil {
		return nil, fmt.Errorf("failed to build services: %w", err)
	}

	sink, gatherer, err := a.buildSink(cfg, opts)
	if err != nil {
		return nil, err
	}

	var codec *auth.TokenCodec
	if len(cfg.SigningSecret) > 0 {
		codec, err = auth.NewTokenCodec(cfg.SigningSecret, auth.WithIssuer(cfg.TokenIssuer))
		if err != nil {
			return nil, err
		}
	}
	authMW, err := auth.NewMiddleware(auth.MiddlewareConfig{
		Codec:           codec,
		DevelopmentMode: cfg.DevMode,
	})
	if err != nil {
		return nil, err
	}
	if authMW.BypassActive() {
		a.logger.Warn("", "", "DEVELOPMENT MODE: authentication bypass is active, every request runs with the wildcard permission", nil)
	}

	if cfg.RedisURL != "" {
		a.store, err = ratelimit.NewRedisStoreFromURL(ctx, cfg.RedisURL, "gateway:ratelimit:")
		if err != nil {
			return nil, err
		}
	} else {
		a.store = ratelimit.NewMemoryStore(time.Minute)
	}
	limits, err := ratelimit.NewEngine(a.store, applyServiceLimits(cfg.RateLimit, services))
	if err != nil {
		return nil, err
	}

	dispatcher := registry.NewDispatcher(a.registry,
		registry.WithSink(sink),
		registry.WithPricing(pricing),
		registry.WithDefaultTimeout(cfg.RequestTimeout),
	)

	a.server, err = NewServer(ServerOptions{
		Registry:           a.registry,
		Dispatcher:         dispatcher,
		Auth:               authMW,
		Limits:             limits,
		Gatherer:           gatherer,
		MaxBodyBytes:       cfg.MaxBodyBytes,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// buildSink fans usage events out to Prometheus, the log and Kafka when
// configured, behind one async queue
func (a *App) buildSink(cfg *config.Config, opts AppOptions) (usage.Sink, prometheus.Gatherer, error) {
	reg := opts.Registerer
	gatherer := opts.Gatherer
	if reg == nil {
		fresh := prometheus.NewRegistry()
		reg = fresh
		gatherer = prometheus.Gatherers{fresh, prometheus.DefaultGatherer}
	}
	promSink, err := usage.NewPrometheusSink(reg)
	if err != nil {
		return nil, nil, err
	}

	sinks := []usage.Sink{promSink, usage.NewLogSink(nil)}
	if len(cfg.MetricsKafkaBrokers) > 0 {
		a.kafka, err = usage.NewKafkaSink(usage.KafkaConfig{
			Brokers:  cfg.MetricsKafkaBrokers,
			Topic:    cfg.MetricsKafkaTopic,
			ClientID: cfg.ServiceName,
		})
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, a.kafka)
	}
	if opts.Sink != nil {
		sinks = append(sinks, opts.Sink)
	}

	a.async = usage.NewAsyncSink(usage.NewMultiSink(sinks...), usage.DefaultAsyncBuffer)
	return a.async, gatherer, nil
}

func defaultSecrets(ctx context.Context, cfg *config.Config) (svcconfig.SecretsManager, error) {
	if cfg.AWSRegion == "" {
		return svcconfig.EnvSecretsManager{}, nil
	}
	return svcconfig.NewAWSSecretsManager(ctx, svcconfig.AWSSecretsManagerOptions{
		Region:   cfg.AWSRegion,
		CacheTTL: 5 * time.Minute,
	})
}

// Handler returns the HTTP handler of the gateway
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Registry returns the sealed service registry
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Serve listens on the configured port until ctx is cancelled or the
// listener fails, then shuts everything down.
func (a *App) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+a.cfg.Port)
	if err != nil {
		_ = a.Close(context.Background())
		return fmt.Errorf("failed to listen on port %s: %w", a.cfg.Port, err)
	}
	return a.ServeListener(ctx, ln)
}

// ServeListener serves on ln; see Serve
func (a *App) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      a.cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("", "", "agent gateway listening", map[string]interface{}{
			"addr":     ln.Addr().String(),
			"services": a.registry.List(),
		})
		errCh <- srv.Serve(ln)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("", "", "shutting down", nil)
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("http shutdown: %w", err))
	}
	return errors.Join(serveErr, a.Close(shutdownCtx))
}

// Close shuts down the handlers, flushes the usage sinks, closes the limiter
// store and flushes traces. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.registry != nil {
			errs = append(errs, a.registry.ShutdownAll(ctx))
		}
		if a.async != nil {
			errs = append(errs, a.async.Close())
		}
		if a.kafka != nil {
			errs = append(errs, a.kafka.Close())
		}
		if a.store != nil {
			errs = append(errs, a.store.Close())
		}
		if a.shutdownTracing != nil {
			errs = append(errs, a.shutdownTracing(ctx))
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
