// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ozean-licht/ozean-licht-sub011/shared/logger"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// DevAgentID is the agent id of the synthetic development identity
const DevAgentID = "dev-agent"

// ErrorWriter renders a rejected request
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// MiddlewareConfig configures the Auth Middleware. A nil Codec means no
// signing secret is configured.
type MiddlewareConfig struct {
	Codec *TokenCodec

	// DevelopmentMode admits every request as a wildcard identity when no
	// codec is configured. It is a local development affordance and must
	// never be enabled in a shared deployment.
	DevelopmentMode bool

	Logger      *logger.Logger
	ErrorWriter ErrorWriter
	Now         func() time.Time
}

// Middleware authenticates requests carrying a bearer credential
type Middleware struct {
	codec   *TokenCodec
	devMode bool
	logger  *logger.Logger
	onError ErrorWriter
	now     func() time.Time
}

// NewMiddleware validates the configuration and builds the middleware.
// Without a codec the development bypass is the only way to authenticate,
// so that combination must be requested explicitly.
func NewMiddleware(cfg MiddlewareConfig) (*Middleware, error) {
	if cfg.Codec == nil && !cfg.DevelopmentMode {
		return nil, errors.New("auth: a signing secret is required unless development mode is enabled")
	}
	m := &Middleware{
		codec:   cfg.Codec,
		devMode: cfg.DevelopmentMode,
		logger:  cfg.Logger,
		onError: cfg.ErrorWriter,
		now:     cfg.Now,
	}
	if m.logger == nil {
		m.logger = logger.New("auth")
	}
	if m.onError == nil {
		m.onError = WriteError
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// BypassActive reports whether requests are admitted without a credential
func (m *Middleware) BypassActive() bool {
	return m.devMode && m.codec == nil
}

// ExtractBearer returns the credential of an "Authorization: Bearer <cred>"
// header. Exactly two space separated tokens are accepted.
func ExtractBearer(header string) (string, error) {
	if header == "" {
		return "", types.NewAuthenticationError(types.CodeMissingCredential, "authorization header is required", nil)
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", types.NewAuthenticationError(types.CodeInvalidScheme, "authorization header must be 'Bearer <credential>'", nil)
	}
	return parts[1], nil
}

// Authenticate resolves the identity of a request without writing anything
func (m *Middleware) Authenticate(r *http.Request) (*types.IdentityToken, error) {
	if m.BypassActive() {
		return &types.IdentityToken{
			AgentID:     DevAgentID,
			DisplayName: "Development Agent",
			Permissions: []string{types.WildcardPermission},
			ExpiresAt:   m.now().Add(24 * time.Hour),
		}, nil
	}

	raw, err := ExtractBearer(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}
	return m.codec.Decode(raw)
}

// Handler rejects unauthenticated requests and attaches the identity of the
// rest to the request context.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.Authenticate(r)
		if err != nil {
			m.onError(w, r, err)
			return
		}

		m.logger.Debug(identity.AgentID, r.Header.Get("X-Request-ID"), "agent authenticated", map[string]interface{}{
			"name":        identity.DisplayName,
			"permissions": identity.Permissions,
			"dev_bypass":  m.BypassActive(),
		})

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// WriteError writes err as a JSON error envelope
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	env := types.ErrorEnvelope(err, types.Metadata{
		Timestamp: time.Now().UTC(),
		RequestID: r.Header.Get("X-Request-ID"),
	})
	if env.Error != nil && env.Error.Kind == types.KindAuthentication {
		w.Header().Set("WWW-Authenticate", `Bearer realm="agent-gateway"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.HTTPStatus())
	_ = json.NewEncoder(w).Encode(env)
}
