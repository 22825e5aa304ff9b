package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// redisStateGrace keeps a consumed-late key around past its logical expiry
// so a just-expired token reports ExpiredState instead of InvalidState.
const redisStateGrace = 5 * time.Minute

const redisStatePrefix = "sso:state:"

// redisStateKey binds the provider into the key so a verify against the
// wrong provider misses instead of consuming the token, matching the SQL
// store's WHERE state AND provider semantics.
func redisStateKey(provider, token string) string {
	return redisStatePrefix + provider + ":" + token
}

type redisStatePayload struct {
	UserID    *int64    `json:"user_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisStateStore keeps states in Redis for multi-instance deployments
// where callback requests may land on a different node than the initiate.
type RedisStateStore struct {
	client *redis.Client
}

// NewRedisStateStore creates a Redis-backed state store
func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func (s *RedisStateStore) Mint(ctx context.Context, provider string, linkingUserID *int64) (string, error) {
	token, err := newStateToken()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(redisStatePayload{
		UserID:    linkingUserID,
		ExpiresAt: time.Now().UTC().Add(StateTTL),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode state: %w", err)
	}

	err = s.client.Set(ctx, redisStateKey(provider, token), payload, StateTTL+redisStateGrace).Err()
	if err != nil {
		return "", fmt.Errorf("failed to persist state: %w", err)
	}
	return token, nil
}

// Verify consumes the key with GETDEL so concurrent verifies of the same
// token cannot both succeed.
func (s *RedisStateStore) Verify(ctx context.Context, token, provider string) (*int64, error) {
	raw, err := s.client.GetDel(ctx, redisStateKey(provider, token)).Result()
	if err == redis.Nil {
		return nil, ErrInvalidState()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify state: %w", err)
	}

	var payload redisStatePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, ErrInvalidState()
	}
	if time.Now().After(payload.ExpiresAt) {
		return nil, ErrExpiredState()
	}
	return payload.UserID, nil
}

// SweepExpired is a no-op for Redis; key TTLs handle cleanup
func (s *RedisStateStore) SweepExpired(context.Context) (int64, error) {
	return 0, nil
}
