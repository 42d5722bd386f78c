// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package auth authenticates agents and authorizes their operations.

# Credentials

Agents present an HS256 JWT as "Authorization: Bearer <credential>". The
TokenCodec verifies the signature with the process-wide secret, requires an
exp claim and rejects the credential at or after that instant. Failures are
AuthenticationErrors with one of three codes:

	token_malformed  not a JWT, or no agent id
	token_invalid    signature, algorithm or issuer mismatch
	token_expired    well formed and signed, but expired

Encode mints credentials for the offline issuance tool (cmd/tokenctl). No
HTTP route reaches it.

# Middleware

Middleware.Handler decodes the credential on every request (there is no
session cache) and stores the identity with WithIdentity. When development
mode is enabled and no secret is configured, every request is admitted as
the wildcard identity "dev-agent". Configuration refuses that combination in
production.

# Permissions

Require(identity, permission) allows "*" or the exact permission string and
nothing else. Denials carry the required permission and the caller's own set.
*/
package auth
