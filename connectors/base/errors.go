// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package base

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// MapHTTPStatus translates a backend HTTP status into the gateway taxonomy.
// It returns nil for 2xx and 3xx statuses.
func MapHTTPStatus(service, operation string, status int, message string) error {
	if status < 400 {
		return nil
	}
	details := map[string]interface{}{
		"service":       service,
		"operation":     operation,
		"backendStatus": status,
	}
	if message != "" {
		details["backendMessage"] = SanitizeLogString(message)
	}

	switch {
	case status == http.StatusNotFound:
		return types.NewValidationError(types.CodeResourceNotFound, "resource not found", details)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.NewValidationError(types.CodeBackendAuthFailed, "authentication failed", details)
	case status == http.StatusTooManyRequests:
		e := types.NewServiceUnavailableError(fmt.Sprintf("%s is throttling requests", service), nil)
		e.Details = details
		return e
	case status >= 500:
		e := types.NewBackendError(fmt.Sprintf("%s returned %d", service, status), nil)
		e.Details = details
		return e
	default:
		return types.NewValidationError(types.CodeInvalidParameter, "backend rejected the request", details)
	}
}

// MapTransportError translates a failure to reach the backend. Caller
// cancellation passes through so it is reported as cancelled.
func MapTransportError(service, operation string, err error) error {
	if err == nil {
		return nil
	}
	var gwErr *types.GatewayError
	if errors.As(err, &gwErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewServiceUnavailableError(fmt.Sprintf("%s %s timed out", service, operation), err)
	}
	return types.NewServiceUnavailableError(fmt.Sprintf("%s is unavailable", service), err)
}

// InvalidParameter reports a parameter that is present but unusable
func InvalidParameter(operation, name, reason string) error {
	return types.NewValidationError(types.CodeInvalidParameter,
		fmt.Sprintf("parameter %q of %q is invalid: %s", name, operation, reason),
		map[string]interface{}{"operation": operation, "parameter": name})
}

// NotFound reports a backend resource that does not exist
func NotFound(service, what string) error {
	return types.NewValidationError(types.CodeResourceNotFound, "resource not found", map[string]interface{}{
		"service":  service,
		"resource": what,
	})
}
