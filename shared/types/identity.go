// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package types

import "time"

// WildcardPermission grants every permission
const WildcardPermission = "*"

// IdentityToken is the decoded bearer credential of an agent. It is built
// per request and never cached.
type IdentityToken struct {
	AgentID           string    `json:"agentId"`
	DisplayName       string    `json:"displayName"`
	Permissions       []string  `json:"permissions"`
	RateLimitOverride *int      `json:"rateLimitOverride,omitempty"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// HasPermission reports whether the identity holds the wildcard or the exact
// permission string. There is no prefix or pattern matching.
func (t *IdentityToken) HasPermission(permission string) bool {
	if t == nil {
		return false
	}
	for _, p := range t.Permissions {
		if p == WildcardPermission || p == permission {
			return true
		}
	}
	return false
}

// QuotaOverride returns the caller-specific window quota, if any
func (t *IdentityToken) QuotaOverride() (int, bool) {
	if t == nil || t.RateLimitOverride == nil || *t.RateLimitOverride <= 0 {
		return 0, false
	}
	return *t.RateLimitOverride, true
}
