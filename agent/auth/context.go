// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package auth

import (
	"context"

	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

type identityKey struct{}

// WithIdentity attaches an authenticated identity to the context
func WithIdentity(ctx context.Context, identity *types.IdentityToken) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity attached by the middleware
func IdentityFromContext(ctx context.Context) (*types.IdentityToken, bool) {
	identity, ok := ctx.Value(identityKey{}).(*types.IdentityToken)
	return identity, ok && identity != nil
}
