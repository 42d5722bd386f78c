// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package usage

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink exports usage events as Prometheus metrics
type PrometheusSink struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	tokens     *prometheus.CounterVec
	cost       *prometheus.CounterVec
}

// NewPrometheusSink creates the gateway operation metrics and registers them
// on reg
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_operations_total",
				Help: "Total dispatched operations by service, operation and outcome",
			},
			[]string{"service", "operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_operation_duration_milliseconds",
				Help:    "Operation wall-clock duration in milliseconds",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2500, 5000, 10000},
			},
			[]string{"service", "operation", "outcome"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_operation_tokens_total",
				Help: "Total tokens charged to dispatched operations",
			},
			[]string{"service", "operation"},
		),
		cost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_operation_estimated_cost_usd_total",
				Help: "Estimated cost in USD of dispatched operations",
			},
			[]string{"service", "operation"},
		),
	}

	for _, c := range []prometheus.Collector{s.operations, s.duration, s.tokens, s.cost} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register usage metrics: %w", err)
		}
	}
	return s, nil
}

func (s *PrometheusSink) RecordOperation(event OperationEvent) {
	outcome := string(event.Outcome)
	s.operations.WithLabelValues(event.Service, event.Operation, outcome).Inc()
	s.duration.WithLabelValues(event.Service, event.Operation, outcome).
		Observe(float64(event.Duration.Microseconds()) / 1000.0)
}

func (s *PrometheusSink) RecordCost(event CostEvent) {
	if event.TokensUsed > 0 {
		s.tokens.WithLabelValues(event.Service, event.Operation).Add(float64(event.TokensUsed))
	}
	if event.EstimatedCost > 0 {
		s.cost.WithLabelValues(event.Service, event.Operation).Add(event.EstimatedCost)
	}
}
