package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aegis-auth/aegis/internal/shared"
)

const tokenKeyPrefix = "token:"

// TokenManager issues and resolves opaque bearer tokens backed by Redis. The
// token value carries no claims; everything about the holder is loaded fresh
// on each request.
type TokenManager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenManager constructs a TokenManager with the given token lifetime.
func NewTokenManager(client *redis.Client, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 720 * time.Hour
	}
	return &TokenManager{client: client, ttl: ttl}
}

// TTL returns the configured token lifetime.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue mints a new token for the user and stores it with the configured TTL.
func (m *TokenManager) Issue(ctx context.Context, userID int64) (string, error) {
	value := uuid.NewString()
	err := m.client.Set(ctx, tokenKeyPrefix+value, strconv.FormatInt(userID, 10), m.ttl).Err()
	if err != nil {
		return "", err
	}
	return value, nil
}

// Resolve maps a token value back to its user id. Unknown or expired tokens
// yield ErrUnauthenticated.
func (m *TokenManager) Resolve(ctx context.Context, value string) (int64, error) {
	raw, err := m.client.Get(ctx, tokenKeyPrefix+value).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, shared.ErrUnauthenticated
		}
		return 0, err
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, shared.ErrUnauthenticated
	}
	return userID, nil
}

// Revoke deletes a token. Revoking an unknown token is a no-op.
func (m *TokenManager) Revoke(ctx context.Context, value string) error {
	return m.client.Del(ctx, tokenKeyPrefix+value).Err()
}
