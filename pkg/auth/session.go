package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for expired, malformed or mis-signed tokens
var ErrInvalidToken = errors.New("invalid session token")

// SessionClaims are the JWT claims carried by MediaKeep session tokens
type SessionClaims struct {
	UserID        int64  `json:"user_id"`
	AuthProvider  string `json:"auth_provider"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// SessionIssuer mints and verifies HS256 session tokens
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionIssuer creates an issuer with the given HMAC secret and token TTL
func NewSessionIssuer(secret string, ttl time.Duration) *SessionIssuer {
	return &SessionIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue mints a session token for the user
func (s *SessionIssuer) Issue(user *User) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UserID:        user.ID,
		AuthProvider:  user.AuthProvider,
		EmailVerified: user.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token
func (s *SessionIssuer) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
