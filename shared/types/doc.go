// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package types holds the data model shared by every gateway component: the
decoded identity of a caller, the normalized operation request, the capability
descriptors a service handler advertises, the response envelope, and the error
taxonomy that maps onto HTTP status codes.

# Error Taxonomy

Every failure that reaches a caller is a *GatewayError. The Kind decides the
HTTP status and the envelope status string:

	authentication_error  401
	permission_error      403
	validation_error      400
	not_found             404
	rate_limit_error      429
	service_unavailable   503 (502 for code backend_error)
	cancelled             499
	internal_error        500

Use AsGatewayError to normalize an arbitrary error at a boundary. Context
cancellation becomes cancelled and deadline expiry becomes service_unavailable.

# Envelope

Envelopes are values. Build them once with SuccessEnvelope or ErrorEnvelope
and pass them along; nothing downstream mutates them.
*/
package types
