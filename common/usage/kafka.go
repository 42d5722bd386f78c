// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package usage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ozean-licht/ozean-licht-sub011/shared/logger"
)

// Event types carried in the "type" field of Kafka messages
const (
	KafkaEventOperation = "operation"
	KafkaEventCost      = "cost"
)

// MessageWriter is the part of *kafka.Writer the sink uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the analytics event stream
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	Acks         string // "none", "one" or "all"
	WriteTimeout time.Duration
	BatchTimeout time.Duration
}

// KafkaSink publishes usage events as JSON, keyed by service name so that
// one service's events stay ordered within a partition. Writes are
// synchronous; wrap the sink in an AsyncSink on the request path.
type KafkaSink struct {
	w       MessageWriter
	timeout time.Duration
	log     *logger.Logger
}

// NewKafkaSink creates a sink with its own kafka.Writer
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic empty")
	}

	acks := kafka.RequireOne
	switch cfg.Acks {
	case "none":
		acks = kafka.RequireNone
	case "all":
		acks = kafka.RequireAll
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 100 * time.Millisecond
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: acks,
		Compression:  kafka.Snappy,
		BatchTimeout: batchTimeout,
		Transport: &kafka.Transport{
			DialTimeout: 10 * time.Second,
			ClientID:    cfg.ClientID,
		},
	}
	return NewKafkaSinkWithWriter(w, cfg.WriteTimeout), nil
}

// NewKafkaSinkWithWriter creates a sink on an existing writer
func NewKafkaSinkWithWriter(w MessageWriter, writeTimeout time.Duration) *KafkaSink {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &KafkaSink{w: w, timeout: writeTimeout, log: logger.New("usage-kafka")}
}

type kafkaEnvelope struct {
	Type       string      `json:"type"`
	DurationMs int64       `json:"duration_ms,omitempty"`
	Event      interface{} `json:"event"`
}

func (s *KafkaSink) RecordOperation(event OperationEvent) {
	s.publish(event.Service, event.RequestID, kafkaEnvelope{
		Type:       KafkaEventOperation,
		DurationMs: event.DurationMs(),
		Event:      event,
	})
}

func (s *KafkaSink) RecordCost(event CostEvent) {
	s.publish(event.Service, event.RequestID, kafkaEnvelope{Type: KafkaEventCost, Event: event})
}

func (s *KafkaSink) publish(key, requestID string, env kafkaEnvelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		s.log.Error("", requestID, "failed to encode usage event", map[string]interface{}{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload}); err != nil {
		s.log.Warn("", requestID, "kafka write failed", map[string]interface{}{
			"type":  env.Type,
			"error": err.Error(),
		})
	}
}

// Close flushes and closes the writer
func (s *KafkaSink) Close() error {
	return s.w.Close()
}
