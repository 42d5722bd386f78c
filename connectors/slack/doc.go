// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package slack is the service handler for the Slack Web API. It posts
// messages and lists channels with a bot token.
package slack
