package auth

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	return makeTokenWithHeader(t, `{"alg":"HS256","typ":"JWT"}`, claims)
}

func makeTokenWithHeader(t *testing.T, header string, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString([]byte(header)) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + ".c2lnbmF0dXJl"
}

func TestIsExpired(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)

	tests := []struct {
		name    string
		token   string
		expired bool
	}{
		{"empty", "", true},
		{"one segment", "abc", true},
		{"two segments", "abc.def", true},
		{"four segments", "a.b.c.d", true},
		{"payload not base64", "eyJhbGciOiJIUzI1NiJ9.!!!.sig", true},
		{"payload not json", "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".sig", true},
		{"no exp", makeToken(t, map[string]any{"sub": "user"}), true},
		{"exp not numeric", makeToken(t, map[string]any{"exp": "tomorrow"}), true},
		{"already expired", makeToken(t, map[string]any{"exp": now.Add(-time.Hour).Unix()}), true},
		{"inside margin", makeToken(t, map[string]any{"exp": now.Add(30 * time.Second).Unix()}), true},
		{"exactly at margin", makeToken(t, map[string]any{"exp": now.Add(60 * time.Second).Unix()}), true},
		{"just past margin", makeToken(t, map[string]any{"exp": now.Add(61 * time.Second).Unix()}), false},
		{"far future", makeToken(t, map[string]any{"exp": now.Add(24 * time.Hour).Unix()}), false},
		{"header without alg", makeTokenWithHeader(t, `{"typ":"JWT"}`, map[string]any{"exp": now.Add(time.Hour).Unix()}), false},
		{"header not json", makeTokenWithHeader(t, "not json", map[string]any{"exp": now.Add(time.Hour).Unix()}), false},
		{"payload not object", "e30." + base64.RawURLEncoding.EncodeToString([]byte("123")) + ".sig", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expired, IsExpiredAt(tt.token, now))
		})
	}
}

func TestIsExpiredUsesWallClock(t *testing.T) {
	fresh := makeToken(t, map[string]any{"exp": time.Now().Add(time.Hour).Unix()})
	stale := makeToken(t, map[string]any{"exp": time.Now().Add(10 * time.Second).Unix()})

	assert.False(t, IsExpired(fresh))
	assert.True(t, IsExpired(stale))
}

func TestExpiresAt(t *testing.T) {
	exp := time.Unix(1_900_000_000, 0)
	got, err := ExpiresAt(makeToken(t, map[string]any{"exp": exp.Unix()}))
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))

	_, err = ExpiresAt(makeToken(t, map[string]any{"iat": exp.Unix()}))
	assert.ErrorIs(t, err, ErrNoExpiry)

	_, err = ExpiresAt("a.b")
	assert.ErrorIs(t, err, ErrMalformedToken)
}
