// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package sourcecontrol is the service handler for a GitHub-compatible REST
// API: repositories, issues and pull requests.
//
// Configuration:
//
//	services:
//	  source-control:
//	    type: source-control
//	    enabled: true
//	    base_url: https://api.github.com   # default
//	    credentials:
//	      token: ${GITHUB_TOKEN}
//	    rate_limit_per_minute: 600
package sourcecontrol
