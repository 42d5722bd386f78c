// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Command gateway runs the agent gateway.

The gateway authenticates agents by bearer credential, checks the
permission an operation needs, applies the global, burst and per-service
rate limits, then dispatches the operation to the configured service
handler and answers with a uniform JSON envelope.

# Usage

	gateway

# Environment Variables

Required outside development mode:
  - GATEWAY_SIGNING_SECRET or GATEWAY_SIGNING_SECRET_ARN: credential signing secret (32+ bytes)

Optional:
  - PORT: HTTP server port (default: 8080)
  - GATEWAY_ENV: development, staging or production (default: development)
  - GATEWAY_DEV_MODE: admit unauthenticated requests when no secret is set
  - GATEWAY_CONFIG_FILE: YAML file with gateway and services sections
  - GATEWAY_SERVICES: name:type pairs configured from GATEWAY_SERVICE_<NAME>_* variables
  - REDIS_URL: shared rate limit store
  - RATE_LIMIT_ENFORCE, RATE_LIMIT_GLOBAL_WINDOW, RATE_LIMIT_GLOBAL_MAX,
    RATE_LIMIT_SERVICE_DEFAULT_MAX, RATE_LIMIT_BURST_MAX
  - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP gRPC collector for traces
  - METRICS_KAFKA_BROKERS, METRICS_KAFKA_TOPIC: usage event stream
  - LOG_LEVEL: debug, info, warn or error (default: info)

# Example

	export GATEWAY_SIGNING_SECRET="$(openssl rand -hex 32)"
	export GATEWAY_SERVICES="github:source-control"
	export GATEWAY_SERVICE_GITHUB_TOKEN="ghp_..."
	./gateway
*/
package main
