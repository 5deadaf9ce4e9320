package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

// adminToken registers an account, promotes it, and logs in again so the
// admin role is baked into fresh tokens.
func adminToken(t *testing.T, app *App, h http.Handler, email string) string {
	t.Helper()
	registerUser(t, h, "Admin", email, "secret123")
	u, err := app.DB.GetUserByEmail(email)
	require.NoError(t, err)
	u.Role = RoleAdmin

	rec, out := doJSON(t, h, "POST", "/auth/login", "", map[string]string{
		"email": email, "password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	data := out["data"].(map[string]interface{})
	require.NotEmpty(t, data["adminToken"])
	return data["accessToken"].(string)
}

func TestAdminStats(t *testing.T) {
	app := newTestApp(t)
	h := app.Router()
	token := adminToken(t, app, h, "adm@x.com")

	user := registerUser(t, h, "U", "u@x.com", "secret123")
	userTok := user["accessToken"].(string)
	uploadAudio(t, h, userTok, "a.mp3", map[string]string{"duration": "60"})
	uploadAudio(t, h, userTok, "b.wav", map[string]string{"duration": "120"})

	rec, out := doJSON(t, h, "GET", "/admin/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := out["data"].(map[string]interface{})
	require.Equal(t, float64(2), stats["totalUsers"])
	require.Equal(t, float64(2), stats["totalAudios"])
	require.Equal(t, float64(180), stats["totalDurationSeconds"])
	require.Equal(t, float64(90), stats["avgDurationSeconds"])
	require.Len(t, stats["formatStats"], 2)
	require.Len(t, stats["categoryStats"], 1)
	// storage figures are fixed-precision strings for the dashboard
	require.IsType(t, "", stats["totalStorageGB"])
	require.IsType(t, "", stats["storageCostUSD"])
}

func TestAdminUsers(t *testing.T) {
	app := newTestApp(t)
	h := app.Router()
	token := adminToken(t, app, h, "adm@x.com")

	user := registerUser(t, h, "U", "u@x.com", "secret123")
	uploadAudio(t, h, user["accessToken"].(string), "a.mp3", nil)

	rec, out := doJSON(t, h, "GET", "/admin/users", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(2), out["count"])

	byEmail := map[string]map[string]interface{}{}
	for _, raw := range out["data"].([]interface{}) {
		row := raw.(map[string]interface{})
		byEmail[row["email"].(string)] = row
	}
	require.Equal(t, float64(1), byEmail["u@x.com"]["audioCount"])
	require.Equal(t, float64(0), byEmail["adm@x.com"]["audioCount"])
	require.NotContains(t, byEmail["u@x.com"], "password")
}

func TestAdminRoutesRejectRegularUsers(t *testing.T) {
	app := newTestApp(t)
	h := app.Router()
	user := registerUser(t, h, "U", "u@x.com", "secret123")
	token := user["accessToken"].(string)

	for _, path := range []string{"/admin/stats", "/admin/users"} {
		rec, _ := doJSON(t, h, "GET", path, token, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestNoAdminTokenForRegularUsers(t *testing.T) {
	app := newTestApp(t)
	h := app.Router()

	data := registerUser(t, h, "U", "u@x.com", "secret123")
	require.NotContains(t, data, "adminToken")

	_, out := doJSON(t, h, "POST", "/auth/login", "", map[string]string{
		"email": "u@x.com", "password": "secret123",
	})
	require.NotContains(t, out["data"].(map[string]interface{}), "adminToken")
}
