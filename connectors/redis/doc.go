// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package redis is the key-value service handler. Every key an agent names
// is scoped under the service's key_prefix.
package redis
