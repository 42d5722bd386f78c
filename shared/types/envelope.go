// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package types

import (
	"net/http"
	"time"
)

// StatusSuccess is the envelope status of a successful operation
const StatusSuccess = "success"

// Outcome is the metrics label for how a request ended: "success" or an
// error kind.
type Outcome string

const OutcomeSuccess Outcome = StatusSuccess

// OutcomeOf returns the outcome label for an error (nil means success)
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	return Outcome(AsGatewayError(err).Kind)
}

// Metadata describes the execution of one request
type Metadata struct {
	ExecutionTimeMs int64     `json:"executionTimeMs"`
	TokensUsed      int       `json:"tokensUsed"`
	EstimatedCost   float64   `json:"estimatedCost"`
	Service         string    `json:"service,omitempty"`
	Operation       string    `json:"operation,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	RequestID       string    `json:"requestId,omitempty"`
}

// ErrorBody is the error section of an envelope
type ErrorBody struct {
	Kind    ErrorKind              `json:"kind"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Envelope is the uniform response shape for every gateway call
type Envelope struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Error    *ErrorBody  `json:"error,omitempty"`
	Metadata Metadata    `json:"metadata"`

	httpStatus int
}

// SuccessEnvelope wraps a handler payload
func SuccessEnvelope(data interface{}, meta Metadata) Envelope {
	return Envelope{
		Status:     StatusSuccess,
		Data:       data,
		Metadata:   meta,
		httpStatus: http.StatusOK,
	}
}

// ErrorEnvelope normalizes err into the error form of the envelope
func ErrorEnvelope(err error, meta Metadata) Envelope {
	gwErr := AsGatewayError(err)
	if gwErr == nil {
		gwErr = NewInternalError("unknown error", nil)
	}
	return Envelope{
		Status: string(gwErr.Kind),
		Error: &ErrorBody{
			Kind:    gwErr.Kind,
			Code:    gwErr.Code,
			Message: gwErr.Message,
			Details: gwErr.Details,
		},
		Metadata:   meta,
		httpStatus: gwErr.HTTPStatus(),
	}
}

// Succeeded reports whether the envelope carries a success status
func (e Envelope) Succeeded() bool {
	return e.Status == StatusSuccess
}

// Outcome returns the metrics label for the envelope
func (e Envelope) Outcome() Outcome {
	return Outcome(e.Status)
}

// HTTPStatus returns the status code to send with the envelope
func (e Envelope) HTTPStatus() int {
	if e.httpStatus != 0 {
		return e.httpStatus
	}
	if e.Succeeded() {
		return http.StatusOK
	}
	if e.Error != nil {
		return e.Error.Kind.HTTPStatus()
	}
	return http.StatusInternalServerError
}
