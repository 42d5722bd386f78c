// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package slack

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/sdk"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// Type is the service type this handler serves
const Type = "slack"

// DefaultBaseURL is the Slack Web API root
const DefaultBaseURL = "https://slack.com/api"

// maxMessageLength is Slack's limit for the text field
const maxMessageLength = 40000

// Connector posts to and reads from Slack
type Connector struct {
	*sdk.BaseConnector
	client *sdk.HTTPClient
}

// New builds the handler. The bot token is read from credentials.bot_token
// or credentials.token.
func New(cfg *base.ConnectorConfig) (*Connector, error) {
	if cfg == nil {
		cfg = &base.ConnectorConfig{}
	}
	b := sdk.NewBaseConnector(Type, cfg)

	token := cfg.Credential("bot_token")
	if token == "" {
		token = cfg.Credential("token")
	}
	if token == "" {
		return nil, base.NewConnectorError(b.Name(), "New", "bot_token credential is required", nil)
	}

	baseURL := DefaultBaseURL
	if cfg.BaseURL != "" {
		policy := base.URLPolicy{AllowPrivateIPs: cfg.BoolOption("allow_private_ips", false)}
		if err := base.ValidateBaseURL(cfg.BaseURL, policy); err != nil {
			return nil, base.NewConnectorError(b.Name(), "New", "invalid base_url", err)
		}
		baseURL = cfg.BaseURL
	}

	// Tier 3 methods allow roughly 50 calls per minute
	perMinute := cfg.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = 50
	}

	c := &Connector{
		BaseConnector: b,
		client: sdk.NewHTTPClient(b.Name(), sdk.HTTPClientConfig{
			BaseURL:           baseURL,
			Timeout:           b.GetTimeout(),
			RequestsPerSecond: float64(perMinute) / 60.0,
			Burst:             3,
			Auth:              sdk.NewBearerTokenAuth(token, time.Time{}),
		}),
	}

	c.Operations().MustRegister(types.Capability{
		Name:        "post-message",
		Aliases:     []string{"send-message"},
		Description: "Post a message to a channel",
		Parameters: []types.Parameter{
			{Name: "channel", Type: "string", Description: "Channel ID or name", Required: true, Positional: true},
			{Name: "text", Type: "string", Required: true},
			{Name: "thread_ts", Type: "string", Description: "Reply in this thread"},
		},
		RequiresAuth: true,
		TokenCost:    3,
		Permission:   "slack:write",
	}, c.postMessage)

	c.Operations().MustRegister(types.Capability{
		Name:        "list-channels",
		Description: "List public channels",
		Parameters: []types.Parameter{
			{Name: "limit", Type: "integer", Default: 100},
			{Name: "cursor", Type: "string"},
		},
		RequiresAuth: true,
		TokenCost:    2,
		Permission:   "slack:read",
		ReadOnly:     true,
	}, c.listChannels)

	c.OnShutdown(func(context.Context) error {
		c.client.CloseIdleConnections()
		return nil
	})
	return c, nil
}

// Message is a posted message
type Message struct {
	Channel   string `json:"channel"`
	Timestamp string `json:"ts"`
	Text      string `json:"text"`
}

// Channel is one Slack channel
type Channel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsPrivate  bool   `json:"isPrivate"`
	IsArchived bool   `json:"isArchived"`
	Members    int    `json:"members"`
}

// ChannelPage is one page of channels
type ChannelPage struct {
	Channels   []Channel `json:"channels"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (c *Connector) postMessage(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	text := req.StringOption("text", "")
	if len(text) > maxMessageLength {
		return nil, base.InvalidParameter(req.Operation, "text", "exceeds 40000 characters")
	}
	body := map[string]interface{}{
		"channel": base.Param(req, 0, "channel"),
		"text":    text,
	}
	if ts := req.StringOption("thread_ts", ""); ts != "" {
		body["thread_ts"] = ts
	}

	var resp struct {
		apiResponse
		Channel string `json:"channel"`
		TS      string `json:"ts"`
	}
	if _, err := c.client.DoJSON(ctx, req.Operation, http.MethodPost, "/chat.postMessage", nil, body, &resp); err != nil {
		return nil, err
	}
	if err := c.apiError(req.Operation, resp.apiResponse); err != nil {
		return nil, err
	}
	return base.NewResult(Message{Channel: resp.Channel, Timestamp: resp.TS, Text: text}), nil
}

func (c *Connector) listChannels(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	limit := req.IntOption("limit", 100)
	if limit < 1 || limit > 1000 {
		return nil, base.InvalidParameter(req.Operation, "limit", "must be between 1 and 1000")
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("exclude_archived", "true")
	if cursor := req.StringOption("cursor", ""); cursor != "" {
		query.Set("cursor", cursor)
	}

	var resp struct {
		apiResponse
		Channels []struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			IsPrivate  bool   `json:"is_private"`
			IsArchived bool   `json:"is_archived"`
			NumMembers int    `json:"num_members"`
		} `json:"channels"`
		Metadata struct {
			NextCursor string `json:"next_cursor"`
		} `json:"response_metadata"`
	}
	if _, err := c.client.DoJSON(ctx, req.Operation, http.MethodGet, "/conversations.list", query, nil, &resp); err != nil {
		return nil, err
	}
	if err := c.apiError(req.Operation, resp.apiResponse); err != nil {
		return nil, err
	}

	page := ChannelPage{Channels: make([]Channel, len(resp.Channels)), NextCursor: resp.Metadata.NextCursor}
	for i, ch := range resp.Channels {
		page.Channels[i] = Channel{
			ID:         ch.ID,
			Name:       ch.Name,
			IsPrivate:  ch.IsPrivate,
			IsArchived: ch.IsArchived,
			Members:    ch.NumMembers,
		}
	}
	return base.NewResult(page), nil
}

// apiError maps Slack's {"ok":false,"error":"..."} onto the taxonomy.
// Slack answers 200 for most failures.
func (c *Connector) apiError(operation string, resp apiResponse) error {
	if resp.OK {
		return nil
	}
	switch resp.Error {
	case "channel_not_found", "thread_not_found", "user_not_found":
		return base.MapHTTPStatus(c.Name(), operation, http.StatusNotFound, resp.Error)
	case "not_authed", "invalid_auth", "account_inactive", "token_revoked", "token_expired", "missing_scope", "not_in_channel":
		return base.MapHTTPStatus(c.Name(), operation, http.StatusForbidden, resp.Error)
	case "ratelimited":
		return base.MapHTTPStatus(c.Name(), operation, http.StatusTooManyRequests, resp.Error)
	case "internal_error", "fatal_error", "service_unavailable", "request_timeout":
		return base.MapHTTPStatus(c.Name(), operation, http.StatusBadGateway, resp.Error)
	default:
		return base.MapHTTPStatus(c.Name(), operation, http.StatusBadRequest, resp.Error)
	}
}

// HealthCheck calls auth.test
func (c *Connector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.IsShutdown() {
		return c.BaseConnector.HealthCheck(ctx)
	}
	start := time.Now()
	var resp apiResponse
	_, err := c.client.DoJSON(ctx, "health", http.MethodPost, "/auth.test", nil, nil, &resp)
	if err == nil {
		err = c.apiError("health", resp)
	}
	status := &base.HealthStatus{Healthy: err == nil, Latency: time.Since(start), Timestamp: time.Now()}
	if err != nil {
		status.Error = err.Error()
	}
	return status, nil
}
