// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package sdk

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
)

// DefaultMaxResponseSize caps backend response bodies (10MB)
const DefaultMaxResponseSize = 10 * 1024 * 1024

// HTTPClientConfig configures an HTTPClient
type HTTPClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond throttles calls to the backend; 0 disables throttling
	RequestsPerSecond float64
	Burst             int
	Headers           map[string]string
	// Auth applies backend credentials to every request; nil sends none
	Auth            AuthProvider
	MaxResponseSize int64
	// Transport overrides the pooled default transport (tests)
	Transport http.RoundTripper
}

// HTTPClient is a JSON client for REST backends. It paces outgoing calls
// so one busy gateway does not trip the backend's own rate limits, and maps
// failures onto the gateway error taxonomy.
type HTTPClient struct {
	service         string
	baseURL         string
	client          *http.Client
	limiter         *rate.Limiter
	headers         map[string]string
	auth            AuthProvider
	maxResponseSize int64
}

// NewHTTPClient creates a client for service
func NewHTTPClient(service string, cfg HTTPClientConfig) *HTTPClient {
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			MaxIdleConns:    100,
			MaxConnsPerHost: 10,
			IdleConnTimeout: 90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	maxSize := cfg.MaxResponseSize
	if maxSize <= 0 {
		maxSize = DefaultMaxResponseSize
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return &HTTPClient{
		service:         service,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		client:          &http.Client{Timeout: timeout, Transport: transport},
		limiter:         limiter,
		headers:         headers,
		auth:            cfg.Auth,
		maxResponseSize: maxSize,
	}
}

// BaseURL returns the API root
func (c *HTTPClient) BaseURL() string { return c.baseURL }

// DoJSON sends body (if any) as JSON and decodes the response into out (if
// non-nil). Non-2xx responses become gateway errors via base.MapHTTPStatus;
// errorMessage extracts a readable message from the error body.
func (c *HTTPClient) DoJSON(ctx context.Context, operation, method, path string, query url.Values, body, out interface{}) (http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, base.MapTransportError(c.service, operation, err)
	}

	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, base.InvalidParameter(operation, "body", err.Error())
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, base.InvalidParameter(operation, "path", err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.auth != nil {
		if err := c.auth.Authenticate(ctx, req); err != nil {
			return nil, base.MapHTTPStatus(c.service, operation, http.StatusUnauthorized, err.Error())
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, base.MapTransportError(c.service, operation, ctxErr)
		}
		return nil, base.MapTransportError(c.service, operation, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return resp.Header, base.MapTransportError(c.service, operation, err)
	}
	if int64(len(data)) > c.maxResponseSize {
		return resp.Header, base.MapTransportError(c.service, operation,
			fmt.Errorf("response exceeds %d bytes", c.maxResponseSize))
	}

	if err := base.MapHTTPStatus(c.service, operation, resp.StatusCode, errorMessage(data)); err != nil {
		return resp.Header, err
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.Header, base.MapTransportError(c.service, operation, fmt.Errorf("invalid JSON from backend: %w", err))
		}
	}
	return resp.Header, nil
}

// errorMessage pulls "message" or "error" out of a JSON error body
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if len(data) > 200 {
		data = data[:200]
	}
	return string(data)
}

// CloseIdleConnections releases pooled connections
func (c *HTTPClient) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}
