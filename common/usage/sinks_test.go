// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package usage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozean-licht/ozean-licht-sub011/shared/logger"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

func opEvent(outcome types.Outcome) OperationEvent {
	return OperationEvent{
		Service:   "source-control",
		Operation: "list-repos",
		Outcome:   outcome,
		AgentID:   "agent-1",
		RequestID: "req-1",
		Duration:  42 * time.Millisecond,
		Timestamp: time.Now(),
	}
}

func TestPrometheusSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	sink.RecordOperation(opEvent(types.OutcomeSuccess))
	sink.RecordOperation(opEvent(types.OutcomeSuccess))
	sink.RecordOperation(opEvent(types.Outcome(types.KindValidation)))
	sink.RecordCost(CostEvent{Service: "source-control", Operation: "list-repos", TokensUsed: 10, EstimatedCost: 0.25})

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.operations.WithLabelValues("source-control", "list-repos", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.operations.WithLabelValues("source-control", "list-repos", "validation_error")))
	assert.Equal(t, 10.0, testutil.ToFloat64(sink.tokens.WithLabelValues("source-control", "list-repos")))
	assert.Equal(t, 0.25, testutil.ToFloat64(sink.cost.WithLabelValues("source-control", "list-repos")))
	assert.Equal(t, 2, testutil.CollectAndCount(sink.duration))

	_, err = NewPrometheusSink(reg)
	assert.Error(t, err, "registering twice on the same registry must fail")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(logger.NewWithWriter("usage", &buf))

	sink.RecordOperation(opEvent(types.Outcome(types.KindPermission)))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "operation failed", entry["message"])
	assert.Equal(t, "agent-1", entry["client_id"])
	fields, ok := entry["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "permission_error", fields["outcome"])
	assert.Equal(t, float64(42), fields["duration_ms"])
}

func TestMultiSink_FansOutAndSkipsNil(t *testing.T) {
	a, b := NewMemorySink(), NewMemorySink()
	multi := NewMultiSink(a, nil, b)
	assert.Len(t, multi, 2)

	multi.RecordOperation(opEvent(types.OutcomeSuccess))
	multi.RecordCost(CostEvent{Service: "redis"})

	assert.Len(t, a.Operations(), 1)
	assert.Len(t, b.Operations(), 1)
	assert.Len(t, a.Costs(), 1)
	assert.Len(t, b.Costs(), 1)
}

func TestAsyncSink_CloseDrains(t *testing.T) {
	mem := NewMemorySink()
	sink := NewAsyncSink(mem, 100)

	for i := 0; i < 50; i++ {
		sink.RecordOperation(opEvent(types.OutcomeSuccess))
		sink.RecordCost(CostEvent{Service: "redis", TokensUsed: 1})
	}
	require.NoError(t, sink.Close())

	assert.Len(t, mem.Operations(), 50)
	assert.Len(t, mem.Costs(), 50)
	assert.Equal(t, uint64(0), sink.Dropped())

	// After close events are dropped, never panic
	sink.RecordOperation(opEvent(types.OutcomeSuccess))
	assert.Equal(t, uint64(1), sink.Dropped())
	assert.NoError(t, sink.Close())
}

type blockingSink struct {
	NoopSink
	release chan struct{}
	once    sync.Once
	started chan struct{}
}

func (b *blockingSink) RecordOperation(OperationEvent) {
	b.once.Do(func() { close(b.started) })
	<-b.release
}

func TestAsyncSink_DropsWhenFull(t *testing.T) {
	blocker := &blockingSink{release: make(chan struct{}), started: make(chan struct{})}
	sink := NewAsyncSink(blocker, 2)

	// First event occupies the worker
	sink.RecordOperation(opEvent(types.OutcomeSuccess))
	<-blocker.started

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			sink.RecordOperation(opEvent(types.OutcomeSuccess))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RecordOperation blocked on a full queue")
	}
	assert.Equal(t, uint64(8), sink.Dropped())

	close(blocker.release)
	require.NoError(t, sink.Close())
}

type panickySink struct{ NoopSink }

func (panickySink) RecordOperation(OperationEvent) { panic("boom") }

func TestAsyncSink_SurvivesPanickingSink(t *testing.T) {
	mem := NewMemorySink()
	sink := NewAsyncSink(NewMultiSink(panickySink{}, mem), 10)

	sink.RecordOperation(opEvent(types.OutcomeSuccess))
	sink.RecordCost(CostEvent{Service: "s3"})
	require.NoError(t, sink.Close())

	assert.Empty(t, mem.Operations())
	assert.Len(t, mem.Costs(), 1)
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSink_PublishesJSONKeyedByService(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSinkWithWriter(w, time.Second)

	sink.RecordOperation(opEvent(types.OutcomeSuccess))
	sink.RecordCost(CostEvent{Service: "source-control", Operation: "list-repos", TokensUsed: 5, EstimatedCost: 0.1})

	require.Len(t, w.messages, 2)
	assert.Equal(t, "source-control", string(w.messages[0].Key))

	var op map[string]interface{}
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &op))
	assert.Equal(t, KafkaEventOperation, op["type"])
	assert.Equal(t, float64(42), op["duration_ms"])
	event := op["event"].(map[string]interface{})
	assert.Equal(t, "success", event["outcome"])
	assert.Equal(t, "req-1", event["request_id"])

	var cost map[string]interface{}
	require.NoError(t, json.Unmarshal(w.messages[1].Value, &cost))
	assert.Equal(t, KafkaEventCost, cost["type"])

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSink_WriteErrorIsSwallowed(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	sink := NewKafkaSinkWithWriter(w, time.Second)

	assert.NotPanics(t, func() {
		sink.RecordOperation(opEvent(types.OutcomeSuccess))
	})
	assert.Empty(t, w.messages)
}

func TestNewKafkaSink_Validation(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{Topic: "usage"})
	assert.Error(t, err)
	_, err = NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	sink, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "usage"})
	require.NoError(t, err)
	assert.NoError(t, sink.Close())
}
