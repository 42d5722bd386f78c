// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package config loads service handler configuration.

Services come from a YAML file whose values may reference the environment
with ${VAR} or ${VAR:-default}:

	version: "1"
	services:
	  source-control:
	    type: source-control
	    enabled: true
	    base_url: https://api.github.com
	    credentials:
	      token: ${GITHUB_TOKEN}
	    timeout_ms: 10000
	  cache:
	    type: redis
	    enabled: true
	    connection_url: ${REDIS_URL:-redis://localhost:6379/0}
	    credentials_secret: arn:aws:secretsmanager:eu-central-1:123456789012:secret:cache

Supported types: source-control, slack, kafka, redis, postgres, mysql,
mongodb, cassandra, s3, azure-blob and gcs.

Without a file, services come from GATEWAY_SERVICES plus per-service environment
variables (see LoadServicesFromEnv).

Credentials named by credentials_secret are resolved through a
SecretsManager: AWS Secrets Manager in production, the environment or an
in-memory map elsewhere.
*/
package config
