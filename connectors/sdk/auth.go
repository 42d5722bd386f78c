// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package sdk

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// ErrCredentialsExpired is returned by Authenticate once a credential's
// expiry has passed
var ErrCredentialsExpired = errors.New("backend credentials have expired")

// AuthProvider applies a handler's backend credentials to outgoing requests
type AuthProvider interface {
	// Authenticate sets the credential on req
	Authenticate(ctx context.Context, req *http.Request) error

	// Type names the scheme, such as "bearer"
	Type() string
}

// APIKeyLocation is where an API key is placed
type APIKeyLocation int

const (
	// APIKeyInHeader places the key in a header
	APIKeyInHeader APIKeyLocation = iota
	// APIKeyInQuery places the key in the query string
	APIKeyInQuery
)

// APIKeyAuth sends a static API key
type APIKeyAuth struct {
	apiKey   string
	location APIKeyLocation
	keyName  string
}

// NewAPIKeyAuth creates an API key provider. keyName defaults to X-API-Key.
func NewAPIKeyAuth(apiKey string, location APIKeyLocation, keyName string) *APIKeyAuth {
	if keyName == "" {
		keyName = "X-API-Key"
	}
	return &APIKeyAuth{apiKey: apiKey, location: location, keyName: keyName}
}

// Authenticate implements AuthProvider
func (a *APIKeyAuth) Authenticate(_ context.Context, req *http.Request) error {
	if a.apiKey == "" {
		return errors.New("API key is not set")
	}
	if a.location == APIKeyInQuery {
		q := req.URL.Query()
		q.Set(a.keyName, a.apiKey)
		req.URL.RawQuery = q.Encode()
		return nil
	}
	req.Header.Set(a.keyName, a.apiKey)
	return nil
}

// Type implements AuthProvider
func (a *APIKeyAuth) Type() string { return "api_key" }

// BasicAuth sends HTTP Basic credentials
type BasicAuth struct {
	username string
	password string
}

// NewBasicAuth creates a Basic auth provider
func NewBasicAuth(username, password string) *BasicAuth {
	return &BasicAuth{username: username, password: password}
}

// Authenticate implements AuthProvider
func (b *BasicAuth) Authenticate(_ context.Context, req *http.Request) error {
	if b.username == "" {
		return errors.New("username is not set")
	}
	req.SetBasicAuth(b.username, b.password)
	return nil
}

// Type implements AuthProvider
func (b *BasicAuth) Type() string { return "basic" }

// BearerTokenAuth sends "Authorization: Bearer <token>". A zero expiry never
// expires.
type BearerTokenAuth struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewBearerTokenAuth creates a bearer token provider
func NewBearerTokenAuth(token string, expiresAt time.Time) *BearerTokenAuth {
	return &BearerTokenAuth{token: token, expiresAt: expiresAt, now: time.Now}
}

// Authenticate implements AuthProvider
func (b *BearerTokenAuth) Authenticate(_ context.Context, req *http.Request) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.token == "" {
		return errors.New("bearer token is not set")
	}
	if !b.expiresAt.IsZero() && !b.now().Before(b.expiresAt) {
		return ErrCredentialsExpired
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	return nil
}

// IsExpired reports whether the token's expiry has passed
func (b *BearerTokenAuth) IsExpired() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.expiresAt.IsZero() && !b.now().Before(b.expiresAt)
}

// SetToken rotates the token
func (b *BearerTokenAuth) SetToken(token string, expiresAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token
	b.expiresAt = expiresAt
}

// Type implements AuthProvider
func (b *BearerTokenAuth) Type() string { return "bearer" }
