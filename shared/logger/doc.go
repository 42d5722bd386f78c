// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package logger provides structured JSON logging for gateway components.

Each entry carries the component name, the instance ID (INSTANCE_ID) and the
container hostname, plus the client (agent) ID and request ID when known:

	log := logger.New("gateway")
	log.Info(agentID, requestID, "operation dispatched", map[string]interface{}{
	    "service": "source-control",
	})

Entries are written by zerolog. The process-wide minimum level is set once at
startup with SetLevel(ParseLevel(os.Getenv("LOG_LEVEL"))).
*/
package logger
