// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package registry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ozean-licht/ozean-licht-sub011/common/usage"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	"github.com/ozean-licht/ozean-licht-sub011/shared/logger"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// DefaultOperationTimeout bounds Execute when the service config sets no
// timeout
const DefaultOperationTimeout = 30 * time.Second

const tracerName = "github.com/ozean-licht/ozean-licht-sub011/connectors/registry"

// UnknownServiceLabel replaces the service and operation of events for
// services that are not registered, keeping metric labels bounded
const UnknownServiceLabel = "unknown"

// Dispatcher routes operation requests to registered handlers
type Dispatcher struct {
	registry       *Registry
	sink           usage.Sink
	pricing        *usage.Pricing
	logger         *logger.Logger
	tracer         trace.Tracer
	defaultTimeout time.Duration
	now            func() time.Time
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithSink sets the usage sink. The sink is called synchronously; wrap slow
// sinks in usage.AsyncSink.
func WithSink(sink usage.Sink) DispatcherOption {
	return func(d *Dispatcher) {
		if sink != nil {
			d.sink = sink
		}
	}
}

// WithPricing sets the cost table
func WithPricing(p *usage.Pricing) DispatcherOption {
	return func(d *Dispatcher) {
		if p != nil {
			d.pricing = p
		}
	}
}

// WithLogger sets the dispatcher logger
func WithLogger(l *logger.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithTracer sets the tracer used for dispatch spans
func WithTracer(t trace.Tracer) DispatcherOption {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithDefaultTimeout sets the timeout for services without their own
func WithDefaultTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.defaultTimeout = timeout
		}
	}
}

// WithClock replaces time.Now for duration measurement
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher creates a dispatcher over reg
func NewDispatcher(reg *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:       reg,
		sink:           usage.NoopSink{},
		pricing:        usage.NewPricing(),
		logger:         logger.New("dispatcher"),
		tracer:         otel.Tracer(tracerName),
		defaultTimeout: DefaultOperationTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher routes to
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

type execution struct {
	serviceType string
	operation   string
	capability  types.Capability
	result      *base.Result
	err         error
}

// Dispatch runs one request and wraps the outcome in an envelope. It never
// panics and never returns a Go error: every failure is in the envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, req *types.OperationRequest) types.Envelope {
	start := d.now()
	if req == nil {
		req = &types.OperationRequest{}
	}

	ctx, span := d.tracer.Start(ctx, "gateway.dispatch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("gateway.service", req.Service),
			attribute.String("gateway.operation", req.Operation),
			attribute.String("gateway.request_id", req.RequestID),
		),
	)
	defer span.End()

	ex := d.run(ctx, req)

	tokens := 0
	if ex.err == nil {
		tokens = ex.capability.TokenCost
		if ex.result != nil && ex.result.TokensUsed > 0 {
			tokens = ex.result.TokensUsed
		}
	}
	elapsed := d.now().Sub(start)
	meta := types.Metadata{
		ExecutionTimeMs: elapsed.Milliseconds(),
		TokensUsed:      tokens,
		EstimatedCost:   d.pricing.EstimateCost(req.Service, ex.serviceType, tokens),
		Service:         req.Service,
		Operation:       ex.operation,
		Timestamp:       start.UTC(),
		RequestID:       req.RequestID,
	}

	var env types.Envelope
	if ex.err != nil {
		env = types.ErrorEnvelope(ex.err, meta)
		span.RecordError(ex.err)
		span.SetStatus(codes.Error, env.Error.Message)
		d.logFailure(req, env, ex.err)
	} else {
		var data interface{}
		if ex.result != nil {
			data = ex.result.Data
		}
		env = types.SuccessEnvelope(data, meta)
		span.SetStatus(codes.Ok, "")
		d.logger.Debug(req.AgentID, req.RequestID, "operation completed", map[string]interface{}{
			"service":     req.Service,
			"operation":   ex.operation,
			"duration_ms": meta.ExecutionTimeMs,
		})
	}
	span.SetAttributes(
		attribute.String("gateway.outcome", string(env.Outcome())),
		attribute.Int("gateway.tokens_used", tokens),
	)

	d.emit(req, meta, env.Outcome(), elapsed)
	return env
}

// Reject records a request that was refused before dispatch, such as a
// permission or rate limit failure, and returns its envelope. The usage
// sink sees exactly one operation event for it, like any dispatched
// request.
func (d *Dispatcher) Reject(req *types.OperationRequest, err error, start time.Time) types.Envelope {
	if req == nil {
		req = &types.OperationRequest{}
	}
	operation := req.Operation
	if c, ok := d.registry.Capability(req.Service, req.Operation); ok {
		operation = c.Name
	}
	elapsed := d.now().Sub(start)
	meta := types.Metadata{
		ExecutionTimeMs: elapsed.Milliseconds(),
		Service:         req.Service,
		Operation:       operation,
		Timestamp:       start.UTC(),
		RequestID:       req.RequestID,
	}
	env := types.ErrorEnvelope(err, meta)
	d.emit(req, meta, env.Outcome(), elapsed)
	return env
}

func (d *Dispatcher) emit(req *types.OperationRequest, meta types.Metadata, outcome types.Outcome, elapsed time.Duration) {
	service, operation := meta.Service, meta.Operation
	if !d.registry.Has(service) {
		service, operation = UnknownServiceLabel, UnknownServiceLabel
	}
	d.sink.RecordOperation(usage.OperationEvent{
		Service:   service,
		Operation: operation,
		Outcome:   outcome,
		AgentID:   req.AgentID,
		RequestID: req.RequestID,
		Duration:  elapsed,
		Timestamp: meta.Timestamp,
	})
	d.sink.RecordCost(usage.CostEvent{
		Service:       service,
		Operation:     operation,
		AgentID:       req.AgentID,
		RequestID:     req.RequestID,
		TokensUsed:    meta.TokensUsed,
		EstimatedCost: meta.EstimatedCost,
		Timestamp:     meta.Timestamp,
	})
}

func (d *Dispatcher) run(ctx context.Context, req *types.OperationRequest) execution {
	ex := execution{operation: req.Operation}

	conn, err := d.registry.Get(req.Service)
	if err != nil {
		ex.err = err
		return ex
	}
	ex.serviceType = conn.Type()

	if err := ctx.Err(); err != nil {
		ex.err = contextError(err, 0)
		return ex
	}
	if err := conn.ValidateParams(req); err != nil {
		ex.err = err
		return ex
	}
	if c, ok := d.registry.Capability(req.Service, req.Operation); ok {
		ex.capability = c
		ex.operation = c.Name
	}

	timeout := d.defaultTimeout
	if cfg, ok := d.registry.Config(req.Service); ok {
		timeout = cfg.GetTimeout(d.defaultTimeout)
	}
	ex.result, ex.err = d.execute(ctx, conn, req, timeout)
	return ex
}

type executeResult struct {
	result *base.Result
	err    error
}

// execute runs the handler in its own goroutine so that a handler which
// ignores its context cannot hold the request past the timeout
func (d *Dispatcher) execute(ctx context.Context, conn base.Connector, req *types.OperationRequest, timeout time.Duration) (*base.Result, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan executeResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				d.logger.Error(req.AgentID, req.RequestID, "service handler panicked", map[string]interface{}{
					"service":   req.Service,
					"operation": req.Operation,
					"panic":     fmt.Sprintf("%v", rec),
					"stack":     string(debug.Stack()),
				})
				done <- executeResult{err: types.NewInternalError("service handler failed", fmt.Errorf("panic: %v", rec))}
			}
		}()
		res, err := conn.Execute(execCtx, req)
		done <- executeResult{result: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() != nil {
			return nil, contextError(ctx.Err(), timeout)
		}
		return out.result, out.err
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return nil, contextError(ctx.Err(), timeout)
		}
		return nil, contextError(execCtx.Err(), timeout)
	}
}

func contextError(err error, timeout time.Duration) error {
	if errors.Is(err, context.Canceled) {
		return types.NewCancelledError(err)
	}
	msg := "operation timed out"
	if timeout > 0 {
		msg = fmt.Sprintf("operation timed out after %s", timeout)
	}
	return types.NewServiceUnavailableError(msg, err)
}

func (d *Dispatcher) logFailure(req *types.OperationRequest, env types.Envelope, err error) {
	fields := map[string]interface{}{
		"service":   req.Service,
		"operation": req.Operation,
		"kind":      string(env.Error.Kind),
		"code":      env.Error.Code,
	}
	switch env.Error.Kind {
	case types.KindInternal:
		fields["error"] = err.Error()
		d.logger.Error(req.AgentID, req.RequestID, "operation failed", fields)
	case types.KindServiceUnavailable:
		fields["error"] = err.Error()
		d.logger.Warn(req.AgentID, req.RequestID, "operation failed", fields)
	default:
		d.logger.Debug(req.AgentID, req.RequestID, "operation rejected", fields)
	}
}
