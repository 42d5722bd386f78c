// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package usage

import (
	"github.com/ozean-licht/ozean-licht-sub011/shared/logger"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// LogSink writes one structured line per event. Failed operations are
// logged at warn, everything else at info (operations) or debug (costs).
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a sink on l, or on a "usage" component logger when l
// is nil
func NewLogSink(l *logger.Logger) *LogSink {
	if l == nil {
		l = logger.New("usage")
	}
	return &LogSink{log: l}
}

func (s *LogSink) RecordOperation(event OperationEvent) {
	fields := map[string]interface{}{
		"service":     event.Service,
		"operation":   event.Operation,
		"outcome":     string(event.Outcome),
		"duration_ms": event.DurationMs(),
	}
	if event.Outcome != types.OutcomeSuccess {
		s.log.Warn(event.AgentID, event.RequestID, "operation failed", fields)
		return
	}
	s.log.Info(event.AgentID, event.RequestID, "operation completed", fields)
}

func (s *LogSink) RecordCost(event CostEvent) {
	s.log.Debug(event.AgentID, event.RequestID, "operation cost", map[string]interface{}{
		"service":            event.Service,
		"operation":          event.Operation,
		"tokens_used":        event.TokensUsed,
		"estimated_cost_usd": event.EstimatedCost,
	})
}
