// Package auth verifies the bearer credentials clients present when opening a
// collaboration connection.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidToken is returned for unknown, expired, or revoked tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the stable user identity a verified token resolves to.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Verifier validates a bearer credential and yields the user behind it.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// RedisVerifier stores opaque bearer tokens in Redis with a TTL. Token
// issuance happens on login (the sessions endpoint); the collaboration engine
// only ever reads.
type RedisVerifier struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisVerifier connects to Redis and verifies the connection.
func NewRedisVerifier(redisURL string) (*RedisVerifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisVerifier{
		client: client,
		prefix: "session:",
		ttl:    30 * 24 * time.Hour,
	}, nil
}

// NewRedisVerifierWithClient creates a verifier from an existing client.
func NewRedisVerifierWithClient(client *redis.Client) *RedisVerifier {
	return &RedisVerifier{
		client: client,
		prefix: "session:",
		ttl:    30 * 24 * time.Hour,
	}
}

func (v *RedisVerifier) key(token string) string {
	return v.prefix + token
}

// Verify resolves a token to the identity it was issued for.
func (v *RedisVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	data, err := v.client.Get(ctx, v.key(token)).Result()
	if err == redis.Nil {
		return Identity{}, ErrInvalidToken
	}
	if err != nil {
		return Identity{}, fmt.Errorf("lookup token: %w", err)
	}

	var id Identity
	if err := json.Unmarshal([]byte(data), &id); err != nil {
		return Identity{}, fmt.Errorf("unmarshal identity: %w", err)
	}

	return id, nil
}

// SaveToken stores a token for an identity. Used by the sessions endpoint.
func (v *RedisVerifier) SaveToken(ctx context.Context, token string, id Identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	if err := v.client.Set(ctx, v.key(token), data, v.ttl).Err(); err != nil {
		return fmt.Errorf("save token: %w", err)
	}

	return nil
}

// RevokeToken deletes a token. Revoking an unknown token is not an error.
func (v *RedisVerifier) RevokeToken(ctx context.Context, token string) error {
	if err := v.client.Del(ctx, v.key(token)).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (v *RedisVerifier) Ping(ctx context.Context) error {
	return v.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (v *RedisVerifier) Close() error {
	return v.client.Close()
}
