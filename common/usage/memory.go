// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package usage

import "sync"

// MemorySink keeps every event in memory. Used by tests and local tooling.
type MemorySink struct {
	mu    sync.Mutex
	ops   []OperationEvent
	costs []CostEvent
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) RecordOperation(event OperationEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, event)
}

func (m *MemorySink) RecordCost(event CostEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.costs = append(m.costs, event)
}

// Operations returns a copy of the recorded operation events
func (m *MemorySink) Operations() []OperationEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OperationEvent(nil), m.ops...)
}

// Costs returns a copy of the recorded cost events
func (m *MemorySink) Costs() []CostEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CostEvent(nil), m.costs...)
}

// Reset forgets every recorded event
func (m *MemorySink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = nil
	m.costs = nil
}
