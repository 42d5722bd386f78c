// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package kafka

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/sdk"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// Type is the service type this handler serves
const Type = "kafka"

// maxMessageBytes matches the broker default message.max.bytes
const maxMessageBytes = 1 << 20

var topicName = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,249}$`)

// Writer is the part of *kafka.Writer the handler uses
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TopicLister returns the topics known to the cluster
type TopicLister interface {
	ListTopics(ctx context.Context) ([]TopicInfo, error)
}

// TopicInfo describes one topic
type TopicInfo struct {
	Name       string `json:"name"`
	Partitions int    `json:"partitions"`
}

// Connector publishes to Kafka
type Connector struct {
	*sdk.BaseConnector
	writer  Writer
	lister  TopicLister
	allowed map[string]bool
}

// Brokers returns the broker list from connection_url (comma separated,
// optional kafka:// prefix) or the "brokers" option
func Brokers(cfg *base.ConnectorConfig) []string {
	raw := cfg.ConnectionURL
	if raw == "" {
		raw = cfg.StringOption("brokers", "")
	}
	raw = strings.TrimPrefix(raw, "kafka://")
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// New dials nothing; kafka-go connects lazily on first write
func New(cfg *base.ConnectorConfig) (*Connector, error) {
	if cfg == nil {
		cfg = &base.ConnectorConfig{}
	}
	brokers := Brokers(cfg)
	if len(brokers) == 0 {
		return nil, base.NewConnectorError(cfg.Name, "New", "connection_url or brokers option is required", nil)
	}

	transport := &kafka.Transport{
		DialTimeout: 10 * time.Second,
		ClientID:    cfg.StringOption("client_id", "agent-gateway"),
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		Transport:    transport,
	}
	lister := &clusterLister{client: &kafka.Client{Addr: kafka.TCP(brokers...), Transport: transport}}
	return NewWithWriter(cfg, w, lister), nil
}

// NewWithWriter builds the handler on an existing writer and lister
func NewWithWriter(cfg *base.ConnectorConfig, w Writer, lister TopicLister) *Connector {
	b := sdk.NewBaseConnector(Type, cfg)
	c := &Connector{BaseConnector: b, writer: w, lister: lister}

	if topics := cfg.StringOption("allowed_topics", ""); topics != "" {
		c.allowed = make(map[string]bool)
		for _, t := range strings.Split(topics, ",") {
			if t = strings.TrimSpace(t); t != "" {
				c.allowed[t] = true
			}
		}
	}

	c.Operations().MustRegister(types.Capability{
		Name:        "publish",
		Aliases:     []string{"publish-message", "send"},
		Description: "Publish one message to a topic",
		Parameters: []types.Parameter{
			{Name: "topic", Type: "string", Required: true, Positional: true},
			{Name: "message", Type: "string", Description: "Message value", Required: true},
			{Name: "key", Type: "string", Description: "Partitioning key"},
			{Name: "headers", Type: "object", Description: "String headers"},
		},
		RequiresAuth: true,
		TokenCost:    2,
		Permission:   "kafka:write",
	}, c.publish)

	c.Operations().MustRegister(types.Capability{
		Name:         "list-topics",
		Description:  "List topics with their partition counts",
		RequiresAuth: true,
		TokenCost:    1,
		Permission:   "kafka:read",
		ReadOnly:     true,
	}, c.listTopics)

	c.OnShutdown(func(context.Context) error {
		return c.writer.Close()
	})
	return c
}

// PublishResult is returned by publish
type PublishResult struct {
	Topic string `json:"topic"`
	Key   string `json:"key,omitempty"`
	Bytes int    `json:"bytes"`
}

func (c *Connector) publish(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	topic := base.Param(req, 0, "topic")
	if !topicName.MatchString(topic) {
		return nil, base.InvalidParameter(req.Operation, "topic", "must match [a-zA-Z0-9._-]{1,249}")
	}
	if c.allowed != nil && !c.allowed[topic] {
		return nil, base.InvalidParameter(req.Operation, "topic", fmt.Sprintf("topic %q is not enabled for this service", topic))
	}

	value := req.StringOption("message", "")
	if len(value) > maxMessageBytes {
		return nil, base.InvalidParameter(req.Operation, "message", "exceeds 1MB")
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(req.StringOption("key", "")),
		Value: []byte(value),
		Time:  time.Now(),
	}
	if raw, ok := req.Option("headers"); ok {
		headers, ok := raw.(map[string]interface{})
		if !ok {
			return nil, base.InvalidParameter(req.Operation, "headers", "must be an object")
		}
		names := make([]string, 0, len(headers))
		for k := range headers {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(fmt.Sprintf("%v", headers[k]))})
		}
	}

	if err := c.writer.WriteMessages(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return nil, base.MapTransportError(c.Name(), req.Operation, ctx.Err())
		}
		return nil, base.MapTransportError(c.Name(), req.Operation, err)
	}

	// one token per KB published on top of the static cost
	return &base.Result{
		Data:       PublishResult{Topic: topic, Key: string(msg.Key), Bytes: len(value)},
		TokensUsed: 2 + len(value)/1024,
	}, nil
}

func (c *Connector) listTopics(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	if c.lister == nil {
		return nil, types.NewServiceUnavailableError("topic listing is not configured", nil)
	}
	topics, err := c.lister.ListTopics(ctx)
	if err != nil {
		return nil, base.MapTransportError(c.Name(), req.Operation, err)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Name < topics[j].Name })
	if c.allowed != nil {
		visible := topics[:0]
		for _, t := range topics {
			if c.allowed[t.Name] {
				visible = append(visible, t)
			}
		}
		topics = visible
	}
	return base.NewResult(topics), nil
}

// HealthCheck fetches cluster metadata
func (c *Connector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.IsShutdown() || c.lister == nil {
		return c.BaseConnector.HealthCheck(ctx)
	}
	start := time.Now()
	_, err := c.lister.ListTopics(ctx)
	status := &base.HealthStatus{Healthy: err == nil, Latency: time.Since(start), Timestamp: time.Now()}
	if err != nil {
		status.Error = err.Error()
	}
	return status, nil
}

type clusterLister struct {
	client *kafka.Client
}

func (l *clusterLister) ListTopics(ctx context.Context) ([]TopicInfo, error) {
	resp, err := l.client.Metadata(ctx, &kafka.MetadataRequest{})
	if err != nil {
		return nil, err
	}
	out := make([]TopicInfo, 0, len(resp.Topics))
	for _, t := range resp.Topics {
		if t.Internal || t.Error != nil {
			continue
		}
		out = append(out, TopicInfo{Name: t.Name, Partitions: len(t.Partitions)})
	}
	return out, nil
}
