// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withLevel(t *testing.T, level LogLevel) {
	t.Helper()
	prev := zerolog.GlobalLevel()
	SetLevel(level)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		instanceID     string
		expectedInstID string
	}{
		{name: "with instance ID set", instanceID: "instance-123", expectedInstID: "instance-123"},
		{name: "without instance ID", instanceID: "", expectedInstID: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("INSTANCE_ID", tt.instanceID)
			l := New("gateway")
			assert.Equal(t, "gateway", l.Component)
			assert.Equal(t, tt.expectedInstID, l.InstanceID)
			assert.NotEmpty(t, l.Container)
		})
	}
}

func TestLogger_WritesStructuredEntry(t *testing.T) {
	withLevel(t, DEBUG)
	var buf bytes.Buffer
	l := NewWithWriter("auth", &buf)

	l.Info("agent-1", "req-1", "authenticated", map[string]interface{}{"permissions": []string{"repo:read"}})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "info", e["level"])
	assert.Equal(t, "auth", e["component"])
	assert.Equal(t, "agent-1", e["client_id"])
	assert.Equal(t, "req-1", e["request_id"])
	assert.Equal(t, "authenticated", e["message"])
	assert.Contains(t, e, "timestamp")
	fields, ok := e["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"repo:read"}, fields["permissions"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	withLevel(t, WARN)
	var buf bytes.Buffer
	l := NewWithWriter("ratelimit", &buf)

	l.Debug("", "", "dropped", nil)
	l.Info("", "", "dropped", nil)
	l.Warn("", "", "kept", nil)
	l.Error("", "", "kept", nil)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "error", entries[1]["level"])
}

func TestLogger_Helpers(t *testing.T) {
	withLevel(t, DEBUG)
	var buf bytes.Buffer
	l := NewWithWriter("dispatcher", &buf)

	l.InfoWithDuration("a", "r", "done", 12.5, nil)
	l.ErrorWithCode("a", "r", "failed", 503, errors.New("backend down"), nil)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, 12.5, entries[0]["fields"].(map[string]interface{})["duration_ms"])
	f := entries[1]["fields"].(map[string]interface{})
	assert.Equal(t, float64(503), f["status_code"])
	assert.Equal(t, "backend down", f["error"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"WARNING": WARN,
		"error":   ERROR,
		"":        INFO,
		"bogus":   INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("", "", "discarded", nil)
}
