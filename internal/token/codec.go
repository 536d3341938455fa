// Package token signs and verifies the compact credentials Gatehouse hands
// to clients: short-lived access tokens carrying identity claims and
// longer-lived refresh tokens carrying only a session id. The two kinds use
// independent secrets, so a token of one kind can never verify as the other.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalid is returned for any token that fails verification: bad
// signature, malformed structure, wrong kind, or expired. Callers must not
// distinguish these cases to the client.
var ErrInvalid = errors.New("invalid token")

// signingMethods restricts verification to HS256. Tokens claiming any other
// algorithm (including "none") are rejected outright.
var signingMethods = []string{jwt.SigningMethodHS256.Alg()}

// AccessClaims is the access token payload: enough to authenticate a single
// request without a store lookup.
type AccessClaims struct {
	UserID    string `json:"uid"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// RefreshClaims is the refresh token payload. It deliberately carries only
// the session id -- revoking the session invalidates refresh without
// touching the token, and a stolen refresh token leaks no user claims.
type RefreshClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Pair is a freshly minted access/refresh token pair. AccessExpiresAt is
// advisory for clients scheduling their next refresh; the authoritative
// validity check for continued access is the session lookup on refresh.
type Pair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// Codec signs and verifies token pairs. Safe for concurrent use.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewCodec creates a codec from the two secret/TTL pairs.
func NewCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Codec {
	return &Codec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// MintPair signs a new access/refresh pair bound to the given session. The
// two signing operations are independent (no ordering, no shared secret),
// so they run concurrently.
func (c *Codec) MintPair(userID, role, sessionID string) (Pair, error) {
	now := time.Now()
	accessExpiry := now.Add(c.accessTTL)

	refreshDone := make(chan error, 1)
	var refreshToken string
	go func() {
		var err error
		refreshToken, err = c.signRefresh(sessionID, now)
		refreshDone <- err
	}()

	accessToken, err := c.signAccess(userID, role, sessionID, now, accessExpiry)
	refreshErr := <-refreshDone

	if err != nil {
		return Pair{}, fmt.Errorf("signing access token: %w", err)
	}
	if refreshErr != nil {
		return Pair{}, fmt.Errorf("signing refresh token: %w", refreshErr)
	}

	return Pair{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		AccessExpiresAt: accessExpiry,
	}, nil
}

// VerifyAccess parses and verifies an access token with the access secret.
// Returns ErrInvalid for any failure.
func (c *Codec) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return c.accessSecret, nil },
		jwt.WithValidMethods(signingMethods),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalid
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// VerifyRefresh parses and verifies a refresh token with the refresh secret.
// Returns ErrInvalid for any failure. A cryptographically valid result still
// only proves session identity -- the caller must check the session store.
func (c *Codec) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return c.refreshSecret, nil },
		jwt.WithValidMethods(signingMethods),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalid
	}
	if claims.SessionID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (c *Codec) signAccess(userID, role, sessionID string, now, expiry time.Time) (string, error) {
	claims := AccessClaims{
		UserID:    userID,
		Role:      role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessSecret)
}

func (c *Codec) signRefresh(sessionID string, now time.Time) (string, error) {
	claims := RefreshClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.refreshTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshSecret)
}
