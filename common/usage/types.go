// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package usage

import (
	"time"

	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// OperationEvent describes how one request ended
type OperationEvent struct {
	Service   string        `json:"service"`
	Operation string        `json:"operation"`
	Outcome   types.Outcome `json:"outcome"`
	AgentID   string        `json:"agent_id,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	Duration  time.Duration `json:"-"`
	Timestamp time.Time     `json:"timestamp"`
}

// DurationMs returns the duration in milliseconds
func (e OperationEvent) DurationMs() int64 {
	return e.Duration.Milliseconds()
}

// CostEvent carries the token usage and estimated cost of one request
type CostEvent struct {
	Service       string    `json:"service"`
	Operation     string    `json:"operation"`
	AgentID       string    `json:"agent_id,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	TokensUsed    int       `json:"tokens_used"`
	EstimatedCost float64   `json:"estimated_cost_usd"`
	Timestamp     time.Time `json:"timestamp"`
}

// Sink receives usage events. Implementations must be safe for concurrent
// use and must not block the caller for long.
type Sink interface {
	RecordOperation(event OperationEvent)
	RecordCost(event CostEvent)
}

// NoopSink discards every event
type NoopSink struct{}

func (NoopSink) RecordOperation(OperationEvent) {}
func (NoopSink) RecordCost(CostEvent)           {}

// MultiSink forwards every event to each of its sinks in order
type MultiSink []Sink

// NewMultiSink drops nil entries
func NewMultiSink(sinks ...Sink) MultiSink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m MultiSink) RecordOperation(event OperationEvent) {
	for _, s := range m {
		s.RecordOperation(event)
	}
}

func (m MultiSink) RecordCost(event CostEvent) {
	for _, s := range m {
		s.RecordCost(event)
	}
}
