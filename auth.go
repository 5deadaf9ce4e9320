package main

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrTokenExpired means the token was well formed and correctly signed
	// but its expiry timestamp is in the past.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers everything else: bad signature, wrong secret,
	// malformed payload.
	ErrTokenInvalid = errors.New("token invalid")
)

func hashPassword(p string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.DefaultCost)
	return string(b), err
}

func comparePassword(hash, p string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
}

// Claims is the payload carried by every token this service signs. Role is
// set only on admin tokens.
type Claims struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies the three token kinds. Access and refresh
// tokens are signed with distinct secrets, so one can never stand in for the
// other even with a forged payload of the right shape.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenService builds a service from explicit configuration so tests can
// run with per-case secrets and expiries.
func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (ts *TokenService) sign(userID int64, role string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// IssueAccessToken mints the short-lived token presented on every protected
// request.
func (ts *TokenService) IssueAccessToken(userID int64) (string, error) {
	return ts.sign(userID, "", ts.accessSecret, ts.accessTTL)
}

// IssueRefreshToken mints the long-lived token used to obtain new access
// tokens without re-entering a password.
func (ts *TokenService) IssueRefreshToken(userID int64) (string, error) {
	return ts.sign(userID, "", ts.refreshSecret, ts.refreshTTL)
}

// IssueAdminToken mints the role-scoped admin token: access secret, refresh
// lifetime. Callers only invoke this for admin users.
func (ts *TokenService) IssueAdminToken(userID int64, role string) (string, error) {
	return ts.sign(userID, role, ts.accessSecret, ts.refreshTTL)
}

func (ts *TokenService) verify(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	})
	if err != nil {
		// A bad signature must never be reported as mere expiry.
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, ErrTokenInvalid
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// VerifyAccessToken checks a token against the access secret. Admin tokens
// verify here too since they share it.
func (ts *TokenService) VerifyAccessToken(tokenString string) (*Claims, error) {
	return ts.verify(tokenString, ts.accessSecret)
}

// VerifyRefreshToken checks a token against the refresh secret.
func (ts *TokenService) VerifyRefreshToken(tokenString string) (*Claims, error) {
	return ts.verify(tokenString, ts.refreshSecret)
}
