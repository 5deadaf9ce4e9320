package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestDenylist(t *testing.T) *RedisDenylist {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisDenylist(mr.Addr(), "", 0)
}

func TestDenylistRoundTrip(t *testing.T) {
	dl := newTestDenylist(t)
	ctx := context.Background()

	revoked, err := dl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, dl.Revoke(ctx, "jti-1", time.Hour))
	revoked, err = dl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)

	// other ids unaffected
	revoked, err = dl.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestDenylistSkipsExpiredTokens(t *testing.T) {
	dl := newTestDenylist(t)
	ctx := context.Background()

	require.NoError(t, dl.Revoke(ctx, "jti-old", -time.Minute))
	revoked, err := dl.IsRevoked(ctx, "jti-old")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestDenylistEntriesExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	dl := NewRedisDenylist(mr.Addr(), "", 0)
	ctx := context.Background()

	require.NoError(t, dl.Revoke(ctx, "jti-ttl", time.Minute))
	mr.FastForward(2 * time.Minute)

	revoked, err := dl.IsRevoked(ctx, "jti-ttl")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	app := newTestApp(t)
	app.Denylist = newTestDenylist(t)
	h := app.Router()

	data := registerUser(t, h, "A", "a@x.com", "secret123")
	access := data["accessToken"].(string)

	rec, _ := doJSON(t, h, "GET", "/audio", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, h, "POST", "/auth/logout", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// the revoked token no longer authorizes anything
	rec, _ = doJSON(t, h, "GET", "/audio", access, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// a fresh login works and its token is unaffected
	rec, out := doJSON(t, h, "POST", "/auth/login", "", map[string]string{
		"email": "a@x.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := out["data"].(map[string]interface{})["accessToken"].(string)
	rec, _ = doJSON(t, h, "GET", "/audio", fresh, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
