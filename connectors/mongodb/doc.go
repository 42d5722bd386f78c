// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package mongodb is the document store service handler. Filters and
// documents arrive as JSON objects; operators that run server-side
// JavaScript are refused.
package mongodb
