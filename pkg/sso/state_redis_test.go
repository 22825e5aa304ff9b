package sso

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStateStore(t *testing.T) (*RedisStateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStateStore(client), mr
}

func TestRedisStateStore_SingleUse(t *testing.T) {
	store, _ := newRedisStateStore(t)
	ctx := context.Background()

	token, err := store.Mint(ctx, "google", nil)
	require.NoError(t, err)

	linking, err := store.Verify(ctx, token, "google")
	require.NoError(t, err)
	assert.Nil(t, linking)

	// second use fails
	_, err = store.Verify(ctx, token, "google")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, CodeInvalidState, authErr.Code)
}

func TestRedisStateStore_ProviderBound(t *testing.T) {
	store, _ := newRedisStateStore(t)
	ctx := context.Background()

	token, err := store.Mint(ctx, "google", nil)
	require.NoError(t, err)

	_, err = store.Verify(ctx, token, "github")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, CodeInvalidState, authErr.Code)

	// the cross-provider attempt must not consume the token
	linking, err := store.Verify(ctx, token, "google")
	require.NoError(t, err)
	assert.Nil(t, linking)
}

func TestRedisStateStore_LinkingUserID(t *testing.T) {
	store, _ := newRedisStateStore(t)
	ctx := context.Background()

	userID := int64(42)
	token, err := store.Mint(ctx, "authentik", &userID)
	require.NoError(t, err)

	linking, err := store.Verify(ctx, token, "authentik")
	require.NoError(t, err)
	require.NotNil(t, linking)
	assert.Equal(t, int64(42), *linking)
}

func TestRedisStateStore_Expired(t *testing.T) {
	store, mr := newRedisStateStore(t)
	ctx := context.Background()

	// plant a token whose logical expiry has passed but whose key is still
	// within the grace window
	payload, err := json.Marshal(redisStatePayload{
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)
	mr.Set(redisStateKey("google", "stale"), string(payload))

	_, err = store.Verify(ctx, "stale", "google")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, CodeExpiredState, authErr.Code)
}

func TestRedisStateStore_KeyTTL(t *testing.T) {
	store, mr := newRedisStateStore(t)

	token, err := store.Mint(context.Background(), "google", nil)
	require.NoError(t, err)

	ttl := mr.TTL(redisStateKey("google", token))
	assert.Equal(t, StateTTL+redisStateGrace, ttl)
}
