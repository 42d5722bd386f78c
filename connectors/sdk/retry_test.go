// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package sdk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

func fastRetry(max int) *RetryConfig {
	return &RetryConfig{MaxRetries: max, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2}
}

func TestDefaultRetryCondition(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"service unavailable", types.NewServiceUnavailableError("down", nil), true},
		{"bad gateway", types.NewBackendError("500", nil), true},
		{"timed out", types.NewServiceUnavailableError("timed out", context.DeadlineExceeded), false},
		{"validation", types.NewValidationError(types.CodeResourceNotFound, "nf", nil), false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultRetryCondition(tt.err))
		})
	}
}

func TestRetryWithBackoff_EventualSuccess(t *testing.T) {
	attempts := 0
	got, err := RetryWithBackoff(context.Background(), fastRetry(3), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("connection reset by peer")
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	attempts := 0
	cause := types.NewServiceUnavailableError("down", nil)
	_, err := RetryWithBackoff(context.Background(), fastRetry(2), func() (int, error) {
		attempts++
		return 0, cause
	})

	var retryErr *RetryError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, 3, retryErr.Attempts)
	assert.Equal(t, 3, attempts)
	assert.Same(t, cause, types.AsGatewayError(err))
}

func TestRetryWithBackoff_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	_, err := RetryWithBackoff(context.Background(), fastRetry(5), func() (int, error) {
		attempts++
		return 0, types.NewValidationError(types.CodeInvalidParameter, "bad", nil)
	})
	assert.True(t, types.IsKind(err, types.KindValidation))
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &RetryConfig{MaxRetries: 5, InitialInterval: time.Hour, Multiplier: 1}

	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := RetryWithBackoff(ctx, cfg, func() (int, error) {
		attempts++
		return 0, errors.New("connection refused")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
