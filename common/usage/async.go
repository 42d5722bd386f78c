// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package usage

import (
	"sync"
	"sync/atomic"

	"github.com/ozean-licht/ozean-licht-sub011/shared/logger"
)

// DefaultAsyncBuffer is the queue size used when none is given
const DefaultAsyncBuffer = 1024

type asyncEvent struct {
	op   *OperationEvent
	cost *CostEvent
}

// AsyncSink queues events for a single background worker that forwards
// them to the wrapped sink. When the queue is full events are dropped and
// counted; callers never block.
type AsyncSink struct {
	next Sink
	ch   chan asyncEvent
	log  *logger.Logger

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
}

// NewAsyncSink starts the worker. buffer <= 0 uses DefaultAsyncBuffer.
func NewAsyncSink(next Sink, buffer int) *AsyncSink {
	if buffer <= 0 {
		buffer = DefaultAsyncBuffer
	}
	s := &AsyncSink{
		next: next,
		ch:   make(chan asyncEvent, buffer),
		log:  logger.New("usage"),
		done: make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *AsyncSink) loop() {
	defer close(s.done)
	for ev := range s.ch {
		s.forward(ev)
	}
}

func (s *AsyncSink) forward(ev asyncEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("", "", "usage sink panicked", map[string]interface{}{"panic": r})
		}
	}()
	if ev.op != nil {
		s.next.RecordOperation(*ev.op)
	}
	if ev.cost != nil {
		s.next.RecordCost(*ev.cost)
	}
}

func (s *AsyncSink) enqueue(ev asyncEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- ev:
	default:
		if n := s.dropped.Add(1); n == 1 || n%1000 == 0 {
			s.log.Warn("", "", "usage queue full, dropping events", map[string]interface{}{"dropped_total": n})
		}
	}
}

func (s *AsyncSink) RecordOperation(event OperationEvent) {
	s.enqueue(asyncEvent{op: &event})
}

func (s *AsyncSink) RecordCost(event CostEvent) {
	s.enqueue(asyncEvent{cost: &event})
}

// Dropped returns how many events were discarded
func (s *AsyncSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close stops accepting events and waits until the queue is drained.
// Calling it again is a no-op.
func (s *AsyncSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	<-s.done
	return nil
}
