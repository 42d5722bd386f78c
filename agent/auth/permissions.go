// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package auth

import (
	"net/http"

	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// Require allows the identity through iff it holds "*" or exactly the
// required permission.
func Require(identity *types.IdentityToken, permission string) error {
	if identity == nil {
		return types.NewAuthenticationError(types.CodeMissingCredential, "request is not authenticated", nil)
	}
	if identity.HasPermission(permission) {
		return nil
	}
	return types.NewPermissionError(permission, identity.Permissions)
}

// PermissionResolver names the permission a request needs
type PermissionResolver func(r *http.Request) string

// Guard builds middleware that enforces Require for each request. It must run
// after the Auth Middleware. An empty resolved permission means the route
// only needs authentication.
func Guard(resolve PermissionResolver, onDeny ErrorWriter) func(http.Handler) http.Handler {
	if onDeny == nil {
		onDeny = WriteError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, _ := IdentityFromContext(r.Context())
			permission := resolve(r)
			if permission == "" {
				if identity == nil {
					onDeny(w, r, Require(nil, ""))
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if err := Require(identity, permission); err != nil {
				onDeny(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
