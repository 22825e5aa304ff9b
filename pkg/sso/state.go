package sso

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/mediakeep/mediakeep/pkg/storage"
)

// StateStore holds short-lived, single-use CSRF state tokens. Each token is
// bound to a provider and optionally to a user id for the account-linking
// flow. Implementations must make Verify atomic: two concurrent verifies of
// the same token must not both succeed.
type StateStore interface {
	// Mint persists a fresh state token valid for StateTTL
	Mint(ctx context.Context, provider string, linkingUserID *int64) (string, error)
	// Verify consumes a token. It returns the linking user id (nil for a
	// plain login) or an InvalidState/ExpiredState error.
	Verify(ctx context.Context, token, provider string) (*int64, error)
	// SweepExpired deletes all expired tokens and returns the count
	SweepExpired(ctx context.Context) (int64, error)
}

// newStateToken returns a 32-byte random token, URL-safe encoded
func newStateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// SQLStateStore keeps states in the sso_states table so they survive
// restarts and are shared across instances.
type SQLStateStore struct {
	db *storage.DB
}

// NewSQLStateStore creates a database-backed state store
func NewSQLStateStore(db *storage.DB) *SQLStateStore {
	return &SQLStateStore{db: db}
}

func (s *SQLStateStore) Mint(ctx context.Context, provider string, linkingUserID *int64) (string, error) {
	token, err := newStateToken()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	var userID interface{}
	if linkingUserID != nil {
		userID = *linkingUserID
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO sso_states (state, provider, user_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`),
		token, provider, userID, now, now.Add(StateTTL))
	if err != nil {
		return "", fmt.Errorf("failed to persist state: %w", err)
	}
	return token, nil
}

// Verify deletes the row and inspects what it held. The single DELETE with
// RETURNING makes the single-use guarantee atomic under concurrent calls.
func (s *SQLStateStore) Verify(ctx context.Context, token, provider string) (*int64, error) {
	var userID sql.NullInt64
	var expiresAt time.Time

	err := s.db.QueryRowContext(ctx, s.db.Rebind(
		`DELETE FROM sso_states WHERE state = ? AND provider = ?
		 RETURNING user_id, expires_at`),
		token, provider).Scan(&userID, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidState()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify state: %w", err)
	}

	if time.Now().After(expiresAt) {
		return nil, ErrExpiredState()
	}
	if userID.Valid {
		id := userID.Int64
		return &id, nil
	}
	return nil, nil
}

func (s *SQLStateStore) SweepExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM sso_states WHERE expires_at < ?`), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired states: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
