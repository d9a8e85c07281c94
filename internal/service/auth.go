package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/graminate/finance-bfa-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "graminate-bfa"

// TokenClaims are the claims carried by a session token. user_id is what
// the Graminate backend issues; sub is accepted as a fallback.
type TokenClaims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Principal returns the user the token was issued to.
func (c *TokenClaims) Principal() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// TokenVerifier checks HS256 session tokens. With an empty secret it is
// disabled and tokens are forwarded to the backend unchecked.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier for secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(strings.TrimSpace(secret))}
}

// Enabled reports whether tokens are checked locally.
func (v *TokenVerifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Verify parses and validates tokenString.
func (v *TokenVerifier) Verify(tokenString string) (*TokenClaims, error) {
	if !v.Enabled() {
		return nil, &domain.ErrUnauthorized{Message: "token verification is disabled"}
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Principal() == "" {
		return nil, &domain.ErrUnauthorized{Message: "token has no subject"}
	}
	return claims, nil
}

// Sign issues a token for userID valid for ttl. Used by the CLI and tests.
func (v *TokenVerifier) Sign(userID string, ttl time.Duration) (string, error) {
	if !v.Enabled() {
		return "", fmt.Errorf("sign token: no secret configured")
	}
	now := time.Now()
	claims := TokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
