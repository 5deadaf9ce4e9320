package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

type creds struct{ Name, Email, Password string }

// userJSON is the client-facing profile shape. The password hash never
// leaves the server.
func userJSON(u *User) map[string]interface{} {
	return map[string]interface{}{
		"id":    u.ID,
		"name":  u.Name,
		"email": u.Email,
		"role":  u.Role,
	}
}

// tokenResponse issues the token triad and writes the auth envelope. The
// admin token is omitted entirely for non-admin users.
func (a *App) tokenResponse(w http.ResponseWriter, status int, user *User) {
	access, err := a.Tokens.IssueAccessToken(user.ID)
	if err != nil {
		writeServerError(w, "issue access token", err)
		return
	}
	refresh, err := a.Tokens.IssueRefreshToken(user.ID)
	if err != nil {
		writeServerError(w, "issue refresh token", err)
		return
	}
	data := map[string]interface{}{
		"user":         userJSON(user),
		"accessToken":  access,
		"refreshToken": refresh,
	}
	if user.Role == RoleAdmin {
		admin, err := a.Tokens.IssueAdminToken(user.ID, user.Role)
		if err != nil {
			writeServerError(w, "issue admin token", err)
			return
		}
		data["adminToken"] = admin
	}
	writeSuccess(w, status, data)
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var c creds
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if c.Name == "" || c.Email == "" || c.Password == "" {
		writeError(w, http.StatusBadRequest, "Please provide email, password, and name")
		return
	}

	hashed, err := hashPassword(c.Password)
	if err != nil {
		writeServerError(w, "hash password", err)
		return
	}
	user, err := a.DB.CreateUser(c.Name, c.Email, hashed, RoleUser)
	if err != nil {
		if err == ErrEmailExists {
			writeError(w, http.StatusConflict, "User already exists with this email")
			return
		}
		writeServerError(w, "create user", err)
		return
	}
	if err := a.DB.TouchLastLogin(user.ID); err != nil {
		writeServerError(w, "stamp last login", err)
		return
	}
	a.tokenResponse(w, http.StatusCreated, user)
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var c creds
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if c.Email == "" || c.Password == "" {
		writeError(w, http.StatusBadRequest, "Please provide email and password")
		return
	}
	user, err := a.DB.GetUserByEmail(c.Email)
	if err != nil {
		writeServerError(w, "lookup user", err)
		return
	}
	// unknown email, deactivated account, and wrong password all answer 401
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !user.IsActive {
		writeError(w, http.StatusUnauthorized, "Account is deactivated")
		return
	}
	if !comparePassword(user.Password, c.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err := a.DB.TouchLastLogin(user.ID); err != nil {
		writeServerError(w, "stamp last login", err)
		return
	}
	a.tokenResponse(w, http.StatusOK, user)
}

// HandleRefresh mints a new access token from a refresh token. The refresh
// token travels in the Authorization header or the JSON body; the header
// wins when both are present. It is not rotated: the same refresh token can
// mint access tokens until its own expiry.
func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		var in struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err == nil {
			token = in.RefreshToken
		}
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "No refresh token found")
		return
	}

	claims, err := a.Tokens.VerifyRefreshToken(token)
	if err != nil {
		if err == ErrTokenExpired {
			writeError(w, http.StatusUnauthorized, "Refresh token expired. Please login again.")
			return
		}
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	user, err := a.DB.GetUserByID(claims.UserID)
	if err != nil {
		writeServerError(w, "resolve user", err)
		return
	}
	if user == nil || !user.IsActive {
		writeError(w, http.StatusUnauthorized, "User not found or inactive")
		return
	}

	access, err := a.Tokens.IssueAccessToken(user.ID)
	if err != nil {
		writeServerError(w, "issue access token", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Token refreshed successfully",
		"data":    map[string]string{"accessToken": access},
	})
}

// HandleLogout is stateless by default: clients discard their tokens. When
// revocation is enabled the presented access token is denylisted for its
// remaining lifetime.
func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if a.Denylist != nil {
		claims := claimsFrom(r)
		if claims != nil && claims.ExpiresAt != nil {
			if err := a.Denylist.Revoke(r.Context(), claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
				writeServerError(w, "revoke token", err)
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (a *App) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	user, err := a.DB.GetUserByID(id)
	if err != nil {
		writeServerError(w, "lookup user", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	profile := userJSON(user)
	profile["createdAt"] = user.CreatedAt
	writeSuccess(w, http.StatusOK, map[string]interface{}{"user": profile})
}
