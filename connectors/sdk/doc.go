// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package sdk holds the building blocks shared by service handlers:
// BaseConnector (operation table, once-only shutdown, config accessors),
// backoff retry for read-only operations and a paced JSON HTTP client.
package sdk
