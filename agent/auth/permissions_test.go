// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

func TestRequire(t *testing.T) {
	tests := []struct {
		name       string
		perms      []string
		permission string
		allow      bool
	}{
		{"exact", []string{"repo:read"}, "repo:read", true},
		{"different", []string{"repo:read"}, "issues:write", false},
		{"no glob", []string{"repo:*"}, "repo:read", false},
		{"no prefix", []string{"repo"}, "repo:read", false},
		{"wildcard", []string{"*"}, "repo:read", true},
		{"wildcard unlisted", []string{"*"}, "never-issued:permission", true},
		{"empty", []string{}, "repo:read", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Require(&types.IdentityToken{AgentID: "a", Permissions: tt.perms}, tt.permission)
			if tt.allow {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			gwErr := types.AsGatewayError(err)
			assert.Equal(t, types.KindPermission, gwErr.Kind)
			assert.Equal(t, tt.permission, gwErr.Details["required"])
			assert.Equal(t, tt.perms, gwErr.Details["available"])
		})
	}
}

func TestRequire_WildcardGrantsArbitraryPermissions(t *testing.T) {
	identity := &types.IdentityToken{AgentID: "root", Permissions: []string{"*"}}
	for _, p := range []string{"", "repo:read", "slack:post-message", "a:b:c", "*", "🚀"} {
		assert.NoError(t, Require(identity, p), p)
	}
}

func TestRequire_NilIdentity(t *testing.T) {
	assert.True(t, types.IsKind(Require(nil, "repo:read"), types.KindAuthentication))
}

func TestGuard(t *testing.T) {
	guard := Guard(func(r *http.Request) string { return r.URL.Query().Get("need") }, nil)

	tests := []struct {
		name     string
		identity *types.IdentityToken
		need     string
		want     int
	}{
		{"allowed", &types.IdentityToken{Permissions: []string{"repo:read"}}, "repo:read", http.StatusOK},
		{"denied", &types.IdentityToken{Permissions: []string{"repo:read"}}, "issues:write", http.StatusForbidden},
		{"auth only", &types.IdentityToken{}, "", http.StatusOK},
		{"no identity", nil, "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &recordingHandler{}
			req := httptest.NewRequest(http.MethodGet, "/?need="+tt.need, nil)
			if tt.identity != nil {
				req = req.WithContext(WithIdentity(req.Context(), tt.identity))
			}
			rec := httptest.NewRecorder()
			guard(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.want == http.StatusOK, next.called)
		})
	}
}
