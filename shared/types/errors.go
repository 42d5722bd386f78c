// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorKind classifies a gateway failure
type ErrorKind string

const (
	KindAuthentication     ErrorKind = "authentication_error"
	KindPermission         ErrorKind = "permission_error"
	KindValidation         ErrorKind = "validation_error"
	KindRateLimit          ErrorKind = "rate_limit_error"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindNotFound           ErrorKind = "not_found"
	KindInternal           ErrorKind = "internal_error"
	KindCancelled          ErrorKind = "cancelled"
)

// StatusClientClosedRequest is the non-standard status used when the caller
// went away before the operation finished.
const StatusClientClosedRequest = 499

// Error codes carried alongside the kind
const (
	CodeMissingCredential  = "missing_credential"
	CodeInvalidScheme      = "invalid_auth_scheme"
	CodeTokenMalformed     = "token_malformed"
	CodeTokenInvalid       = "token_invalid"
	CodeTokenExpired       = "token_expired"
	CodePermissionDenied   = "permission_denied"
	CodeInvalidRequest     = "invalid_request"
	CodeUnknownOperation   = "unknown_operation"
	CodeMissingParameter   = "missing_parameter"
	CodeInvalidParameter   = "invalid_parameter"
	CodeResourceNotFound   = "resource_not_found"
	CodeBackendAuthFailed  = "backend_authentication_failed"
	CodeRateLimitExceeded  = "rate_limit_exceeded"
	CodeBackendUnavailable = "backend_unavailable"
	CodeBackendError       = "backend_error"
	CodeUnknownService     = "unknown_service"
	CodeRouteNotFound      = "route_not_found"
	CodeInternal           = "internal_error"
	CodeRequestCancelled   = "request_cancelled"
)

// HTTPStatus returns the status code for the kind
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindPermission:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// GatewayError is the single error type surfaced to callers
type GatewayError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error onto a response status. A backend that answered
// with a server error is reported as a bad gateway; anything else that makes
// the backend unusable is 503.
func (e *GatewayError) HTTPStatus() int {
	if e.Kind == KindServiceUnavailable && e.Code == CodeBackendError {
		return http.StatusBadGateway
	}
	return e.Kind.HTTPStatus()
}

// WithDetail returns a copy of the error with one extra detail attached
func (e *GatewayError) WithDetail(key string, value interface{}) *GatewayError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	cp := *e
	cp.Details = details
	return &cp
}

// NewGatewayError creates a GatewayError
func NewGatewayError(kind ErrorKind, code, message string, cause error) *GatewayError {
	return &GatewayError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAuthenticationError reports a missing or unusable credential
func NewAuthenticationError(code, message string, cause error) *GatewayError {
	return NewGatewayError(KindAuthentication, code, message, cause)
}

// NewPermissionError reports an identity that lacks the required permission.
// The caller's own permission set is included so it can see what it holds.
func NewPermissionError(required string, available []string) *GatewayError {
	held := make([]string, len(available))
	copy(held, available)
	return &GatewayError{
		Kind:    KindPermission,
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("permission %q required", required),
		Details: map[string]interface{}{
			"required":  required,
			"available": held,
		},
	}
}

// NewValidationError reports a malformed operation request
func NewValidationError(code, message string, details map[string]interface{}) *GatewayError {
	return &GatewayError{
		Kind:    KindValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewUnknownOperationError names the operation that is not in the catalog
func NewUnknownOperationError(service, operation string, available []string) *GatewayError {
	return NewValidationError(CodeUnknownOperation,
		fmt.Sprintf("operation %q is not supported by service %q", operation, service),
		map[string]interface{}{
			"service":   service,
			"operation": operation,
			"available": available,
		})
}

// NewMissingParameterError names every required parameter that was absent
func NewMissingParameterError(operation string, missing []string) *GatewayError {
	return NewValidationError(CodeMissingParameter,
		fmt.Sprintf("operation %q is missing required parameter(s): %s", operation, strings.Join(missing, ", ")),
		map[string]interface{}{
			"operation": operation,
			"missing":   missing,
		})
}

// NewRateLimitError reports a tripped limiter with enough detail to back off
func NewRateLimitError(limiter string, limit int, window time.Duration, identifier string, retryAfter time.Duration) *GatewayError {
	return &GatewayError{
		Kind:    KindRateLimit,
		Code:    CodeRateLimitExceeded,
		Message: fmt.Sprintf("%s rate limit of %d requests per %s exceeded", limiter, limit, window),
		Details: map[string]interface{}{
			"limiter":      limiter,
			"limit":        limit,
			"windowMs":     window.Milliseconds(),
			"identifier":   identifier,
			"retryAfterMs": retryAfter.Milliseconds(),
		},
	}
}

// NewServiceUnavailableError reports a backend that could not be reached
func NewServiceUnavailableError(message string, cause error) *GatewayError {
	return NewGatewayError(KindServiceUnavailable, CodeBackendUnavailable, message, cause)
}

// NewBackendError reports a backend that answered with a server error
func NewBackendError(message string, cause error) *GatewayError {
	return NewGatewayError(KindServiceUnavailable, CodeBackendError, message, cause)
}

// NewNotFoundError reports an unknown service or route
func NewNotFoundError(code, message string) *GatewayError {
	return NewGatewayError(KindNotFound, code, message, nil)
}

// NewInternalError wraps an unexpected failure
func NewInternalError(message string, cause error) *GatewayError {
	return NewGatewayError(KindInternal, CodeInternal, message, cause)
}

// NewCancelledError reports a request abandoned by its caller
func NewCancelledError(cause error) *GatewayError {
	return NewGatewayError(KindCancelled, CodeRequestCancelled, "request cancelled by caller", cause)
}

// AsGatewayError normalizes any error into a *GatewayError. It returns nil
// for a nil error.
func AsGatewayError(err error) *GatewayError {
	if err == nil {
		return nil
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	switch {
	case errors.Is(err, context.Canceled):
		return NewCancelledError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewServiceUnavailableError("operation timed out", err)
	default:
		return NewInternalError("internal error", err)
	}
}

// IsKind reports whether err normalizes to the given kind
func IsKind(err error, kind ErrorKind) bool {
	gwErr := AsGatewayError(err)
	return gwErr != nil && gwErr.Kind == kind
}
