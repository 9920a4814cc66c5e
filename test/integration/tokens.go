package integration

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pitabwire/repairdesk/internal/session"
)

// TokenClaims holds the configurable claims of a hand-made session token.
type TokenClaims struct {
	Username  string
	Role      string
	SessionID string
	Issuer    string
	ExpiresAt time.Time
}

func (c TokenClaims) withDefaults() TokenClaims {
	if c.SessionID == "" {
		c.SessionID = uuid.NewString()
	}
	if c.Issuer == "" {
		c.Issuer = testIssuer
	}
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = time.Now().Add(time.Hour)
	}
	return c
}

// SignToken signs c with the harness secret. The token verifies, but its
// session exists only if the harness created it through a login.
func (h *TestHarness) SignToken(c TokenClaims) string {
	h.t.Helper()
	return h.signWith(c.withDefaults(), []byte(testSecret), jwt.SigningMethodHS256)
}

// ExpiredToken returns a correctly signed token that expired an hour ago.
func (h *TestHarness) ExpiredToken(username, role string) string {
	h.t.Helper()
	return h.SignToken(TokenClaims{Username: username, Role: role, ExpiresAt: time.Now().Add(-time.Hour)})
}

// ForgedToken returns a token signed with the wrong secret.
func (h *TestHarness) ForgedToken(username, role string) string {
	h.t.Helper()
	c := TokenClaims{Username: username, Role: role}.withDefaults()
	return h.signWith(c, []byte("not-the-server-secret-0123456789abcdef"), jwt.SigningMethodHS256)
}

// NoneToken returns an unsigned token using the "none" algorithm.
func (h *TestHarness) NoneToken(username, role string) string {
	h.t.Helper()
	c := TokenClaims{Username: username, Role: role}.withDefaults()
	return h.signWith(c, jwt.UnsafeAllowNoneSignatureType, jwt.SigningMethodNone)
}

func (h *TestHarness) signWith(c TokenClaims, key any, method jwt.SigningMethod) string {
	h.t.Helper()
	now := time.Now()
	claims := &session.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        c.SessionID,
			Issuer:    c.Issuer,
			Subject:   c.Username,
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			NotBefore: jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
		Role:      c.Role,
		SessionID: c.SessionID,
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		h.t.Fatalf("sign token: %v", err)
	}
	return signed
}
