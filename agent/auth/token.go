// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// MinSecretLength is the shortest signing secret accepted for HS256
const MinSecretLength = 32

func init() {
	// Expiry is compared with millisecond resolution. Whole-second NumericDate
	// values would move expiresAt up to a second away from issue time + ttl.
	jwt.TimePrecision = time.Millisecond
}

// PermissionList decodes either a JSON array or a comma separated string
type PermissionList []string

// UnmarshalJSON accepts ["a","b"] and "a,b"
func (p *PermissionList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*p = list
		return nil
	}
	var csv string
	if err := json.Unmarshal(data, &csv); err != nil {
		return fmt.Errorf("permissions must be an array or a comma separated string: %w", err)
	}
	out := []string{}
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*p = out
	return nil
}

// Claims is the JWT payload of an agent credential
type Claims struct {
	AgentID           string         `json:"agent_id,omitempty"`
	Name              string         `json:"name,omitempty"`
	Permissions       PermissionList `json:"permissions"`
	RateLimitOverride *int           `json:"rate_limit_override,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec verifies, decodes and mints agent credentials with a single
// process-wide HS256 secret. Rotating the secret invalidates every
// outstanding credential.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// CodecOption configures a TokenCodec
type CodecOption func(*TokenCodec)

// WithClock replaces time.Now for expiry checks and minting
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// WithIssuer stamps minted credentials and requires the same issuer on decode
func WithIssuer(issuer string) CodecOption {
	return func(c *TokenCodec) {
		c.issuer = issuer
	}
}

// NewTokenCodec creates a codec for the given secret
func NewTokenCodec(secret []byte, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret is required")
	}
	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	}
	if c.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(c.issuer))
	}
	c.parser = jwt.NewParser(parserOpts...)
	return c, nil
}

// Decode verifies the raw credential and returns the identity it carries.
// Malformed, badly signed and expired credentials fail with distinct codes.
func (c *TokenCodec) Decode(raw string) (*types.IdentityToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, types.NewAuthenticationError(types.CodeTokenMalformed, "credential is empty", nil)
	}

	claims := &Claims{}
	_, err := c.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, types.NewAuthenticationError(types.CodeTokenMalformed, "credential is malformed", err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, types.NewAuthenticationError(types.CodeTokenExpired, "credential has expired, please re-authenticate", err)
		default:
			return nil, types.NewAuthenticationError(types.CodeTokenInvalid, "credential is invalid", err)
		}
	}

	agentID := claims.AgentID
	if agentID == "" {
		agentID = claims.Subject
	}
	if agentID == "" {
		return nil, types.NewAuthenticationError(types.CodeTokenMalformed, "credential does not name an agent", nil)
	}

	perms := make([]string, len(claims.Permissions))
	copy(perms, claims.Permissions)

	return &types.IdentityToken{
		AgentID:           agentID,
		DisplayName:       claims.Name,
		Permissions:       perms,
		RateLimitOverride: claims.RateLimitOverride,
		ExpiresAt:         claims.ExpiresAt.Time,
	}, nil
}

type mintOptions struct {
	rateLimitOverride *int
}

// MintOption configures an Encode call
type MintOption func(*mintOptions)

// WithRateLimitOverride sets the caller-specific global window quota
func WithRateLimitOverride(limit int) MintOption {
	return func(o *mintOptions) {
		o.rateLimitOverride = &limit
	}
}

// Encode mints a credential. It belongs to the trusted issuance path and is
// never wired to request handling.
func (c *TokenCodec) Encode(agentID, displayName string, permissions []string, ttl time.Duration, opts ...MintOption) (string, error) {
	if strings.TrimSpace(agentID) == "" {
		return "", errors.New("agent id is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	var mo mintOptions
	for _, opt := range opts {
		opt(&mo)
	}

	now := c.now()
	perms := make(PermissionList, len(permissions))
	copy(perms, permissions)

	claims := Claims{
		AgentID:           agentID,
		Name:              displayName,
		Permissions:       perms,
		RateLimitOverride: mo.rateLimitOverride,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID,
			Issuer:    c.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign credential: %w", err)
	}
	return signed, nil
}
