// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package kafka is the service handler that lets agents publish messages to
// Kafka topics and list the topics a cluster carries.
package kafka
