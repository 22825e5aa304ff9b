package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser() *User {
	return &User{
		ID:            42,
		Username:      "alice@google.local",
		AuthProvider:  "google",
		EmailVerified: true,
	}
}

func TestSessionIssuer_RoundTrip(t *testing.T) {
	issuer := NewSessionIssuer("test-secret", time.Hour)

	token, err := issuer.Issue(testUser())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice@google.local", claims.Subject)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "google", claims.AuthProvider)
	assert.True(t, claims.EmailVerified)
}

func TestSessionIssuer_Expired(t *testing.T) {
	issuer := NewSessionIssuer("test-secret", -time.Minute)

	token, err := issuer.Issue(testUser())
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionIssuer_WrongSecret(t *testing.T) {
	token, err := NewSessionIssuer("secret-a", time.Hour).Issue(testUser())
	require.NoError(t, err)

	_, err = NewSessionIssuer("secret-b", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionIssuer_Garbage(t *testing.T) {
	issuer := NewSessionIssuer("test-secret", time.Hour)

	_, err := issuer.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
