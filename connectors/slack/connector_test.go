// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

func newTestConnector(t *testing.T, handler http.HandlerFunc) *Connector {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(&base.ConnectorConfig{
		Name:        "slack",
		BaseURL:     srv.URL,
		Credentials: map[string]string{"bot_token": "xoxb-test"},
		Options:     map[string]interface{}{"allow_private_ips": true},
	})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New(&base.ConnectorConfig{})
	assert.Error(t, err)

	c, err := New(&base.ConnectorConfig{Credentials: map[string]string{"token": "xoxb-1"}})
	require.NoError(t, err)
	assert.Equal(t, "slack", c.Name())
}

func TestPostMessage(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		assert.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "C123", body["channel"])
		assert.Equal(t, "deploy finished", body["text"])
		assert.Equal(t, "1700000000.000100", body["thread_ts"])

		_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000001.000200"}`))
	})

	for _, op := range []string{"post-message", "send-message"} {
		res, err := c.Execute(context.Background(), &types.OperationRequest{
			Operation: op,
			Args:      []string{"C123"},
			Options:   map[string]interface{}{"text": "deploy finished", "thread_ts": "1700000000.000100"},
		})
		require.NoError(t, err, op)
		msg := res.Data.(Message)
		assert.Equal(t, "1700000001.000200", msg.Timestamp)
	}
}

func TestPostMessage_Validation(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("backend must not be called")
	})

	_, err := c.Execute(context.Background(), &types.OperationRequest{Operation: "post-message", Args: []string{"C123"}})
	assert.Equal(t, types.CodeMissingParameter, types.AsGatewayError(err).Code)

	_, err = c.Execute(context.Background(), &types.OperationRequest{
		Operation: "post-message",
		Args:      []string{"C123"},
		Options:   map[string]interface{}{"text": strings.Repeat("x", maxMessageLength+1)},
	})
	assert.Equal(t, types.CodeInvalidParameter, types.AsGatewayError(err).Code)
}

func TestSlackErrorsMapToTaxonomy(t *testing.T) {
	tests := []struct {
		slackError string
		kind       types.ErrorKind
		code       string
	}{
		{"channel_not_found", types.KindValidation, types.CodeResourceNotFound},
		{"invalid_auth", types.KindValidation, types.CodeBackendAuthFailed},
		{"ratelimited", types.KindServiceUnavailable, types.CodeBackendUnavailable},
		{"internal_error", types.KindServiceUnavailable, types.CodeBackendError},
		{"msg_too_long", types.KindValidation, types.CodeInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.slackError, func(t *testing.T) {
			c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"ok":false,"error":"` + tt.slackError + `"}`))
			})
			_, err := c.Execute(context.Background(), &types.OperationRequest{
				Operation: "post-message",
				Args:      []string{"C123"},
				Options:   map[string]interface{}{"text": "hi"},
			})
			gwErr := types.AsGatewayError(err)
			require.NotNil(t, gwErr)
			assert.Equal(t, tt.kind, gwErr.Kind)
			assert.Equal(t, tt.code, gwErr.Code)
		})
	}
}

func TestListChannels(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations.list", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "abc", r.URL.Query().Get("cursor"))
		_, _ = w.Write([]byte(`{"ok":true,"channels":[{"id":"C1","name":"general","num_members":12}],"response_metadata":{"next_cursor":"def"}}`))
	})

	res, err := c.Execute(context.Background(), &types.OperationRequest{
		Operation: "list-channels",
		Options:   map[string]interface{}{"limit": float64(50), "cursor": "abc"},
	})
	require.NoError(t, err)
	page := res.Data.(ChannelPage)
	require.Len(t, page.Channels, 1)
	assert.Equal(t, "general", page.Channels[0].Name)
	assert.Equal(t, 12, page.Channels[0].Members)
	assert.Equal(t, "def", page.NextCursor)
}

func TestHealthCheck(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"invalid_auth"}`))
	})
	status, err := c.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Error, "authentication failed")
}
