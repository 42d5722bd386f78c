// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

var testSecret = []byte("test-secret-with-at-least-32-bytes!!")

func newTestCodec(t *testing.T, opts ...CodecOption) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(testSecret, opts...)
	require.NoError(t, err)
	return codec
}

func assertAuthCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	gwErr := types.AsGatewayError(err)
	assert.Equal(t, types.KindAuthentication, gwErr.Kind)
	assert.Equal(t, code, gwErr.Code)
}

func TestNewTokenCodec_RequiresSecret(t *testing.T) {
	_, err := NewTokenCodec(nil)
	assert.Error(t, err)
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	ttl := 15 * time.Minute

	before := time.Now()
	raw, err := codec.Encode("agent-42", "Deploy Bot", []string{"repo:read", "issues:write"}, ttl)
	require.NoError(t, err)

	identity, err := codec.Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, "agent-42", identity.AgentID)
	assert.Equal(t, "Deploy Bot", identity.DisplayName)
	assert.Equal(t, []string{"repo:read", "issues:write"}, identity.Permissions)
	assert.Nil(t, identity.RateLimitOverride)
	assert.WithinDuration(t, before.Add(ttl), identity.ExpiresAt, 300*time.Millisecond)
}

func TestTokenCodec_RateLimitOverride(t *testing.T) {
	codec := newTestCodec(t)

	raw, err := codec.Encode("agent-1", "", []string{"*"}, time.Hour, WithRateLimitOverride(1000))
	require.NoError(t, err)

	identity, err := codec.Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, identity.RateLimitOverride)
	assert.Equal(t, 1000, *identity.RateLimitOverride)
}

func TestTokenCodec_Expired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	codec := newTestCodec(t, WithClock(func() time.Time { return clock }))

	raw, err := codec.Encode("agent-1", "bot", []string{"repo:read"}, time.Minute)
	require.NoError(t, err)

	clock = now.Add(59 * time.Second)
	_, err = codec.Decode(raw)
	require.NoError(t, err)

	clock = now.Add(time.Minute)
	_, err = codec.Decode(raw)
	assertAuthCode(t, err, types.CodeTokenExpired)
}

func TestTokenCodec_Malformed(t *testing.T) {
	codec := newTestCodec(t)

	for _, raw := range []string{"", "   ", "not-a-jwt", "a.b.c", "eyJhbGciOiJIUzI1NiJ9.@@@.sig"} {
		t.Run(raw, func(t *testing.T) {
			_, err := codec.Decode(raw)
			assertAuthCode(t, err, types.CodeTokenMalformed)
		})
	}
}

func TestTokenCodec_WrongSecret(t *testing.T) {
	other, err := NewTokenCodec([]byte("another-secret-that-is-32-bytes-long"))
	require.NoError(t, err)
	raw, err := other.Encode("agent-1", "", []string{"*"}, time.Hour)
	require.NoError(t, err)

	_, err = newTestCodec(t).Decode(raw)
	assertAuthCode(t, err, types.CodeTokenInvalid)
}

func TestTokenCodec_ExpiredWithBadSignatureIsInvalid(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	other, err := NewTokenCodec([]byte("another-secret-that-is-32-bytes-long"), WithClock(func() time.Time { return past }))
	require.NoError(t, err)
	raw, err := other.Encode("agent-1", "", []string{"*"}, time.Minute)
	require.NoError(t, err)

	_, err = newTestCodec(t).Decode(raw)
	assertAuthCode(t, err, types.CodeTokenInvalid)
}

func TestTokenCodec_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{
		AgentID:     "agent-1",
		Permissions: PermissionList{"*"},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = newTestCodec(t).Decode(raw)
	assertAuthCode(t, err, types.CodeTokenInvalid)
}

func TestTokenCodec_RequiresExpiry(t *testing.T) {
	claims := Claims{AgentID: "agent-1", Permissions: PermissionList{"*"}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = newTestCodec(t).Decode(raw)
	assertAuthCode(t, err, types.CodeTokenInvalid)
}

func TestTokenCodec_SubjectFallbackAndCSVPermissions(t *testing.T) {
	claims := jwt.MapClaims{
		"sub":         "agent-from-sub",
		"permissions": "repo:read, issues:write",
		"exp":         time.Now().Add(time.Hour).Unix(),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	identity, err := newTestCodec(t).Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "agent-from-sub", identity.AgentID)
	assert.Equal(t, []string{"repo:read", "issues:write"}, identity.Permissions)
}

func TestTokenCodec_MissingAgentID(t *testing.T) {
	claims := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = newTestCodec(t).Decode(raw)
	assertAuthCode(t, err, types.CodeTokenMalformed)
}

func TestTokenCodec_Issuer(t *testing.T) {
	issuing := newTestCodec(t, WithIssuer("tokenctl"))
	raw, err := issuing.Encode("agent-1", "", []string{"*"}, time.Hour)
	require.NoError(t, err)

	_, err = newTestCodec(t, WithIssuer("tokenctl")).Decode(raw)
	assert.NoError(t, err)

	_, err = newTestCodec(t, WithIssuer("someone-else")).Decode(raw)
	assertAuthCode(t, err, types.CodeTokenInvalid)
}

func TestTokenCodec_EncodeValidation(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.Encode("", "name", nil, time.Hour)
	assert.Error(t, err)

	_, err = codec.Encode("agent-1", "name", nil, 0)
	assert.Error(t, err)
}
