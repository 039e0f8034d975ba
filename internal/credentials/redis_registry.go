// Package credentials keeps track of issued session credentials so they can be
// revoked before they expire.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"retro/api/internal/auth"
)

// ErrNotFound is returned when a credential is unknown, expired or revoked.
var ErrNotFound = auth.ErrUnknownCredential

// record holds the data stored for each issued credential
type record struct {
	SessionID string    `json:"session_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisRegistry implements credential tracking using Redis
type RedisRegistry struct {
	client *redis.Client
	prefix string
}

// NewRedisRegistry creates a new Redis-backed registry
func NewRedisRegistry(redisURL string) (*RedisRegistry, error) {
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

	return NewRedisRegistryWithClient(client), nil
}

// NewRedisRegistryWithClient creates a registry from an existing Redis client
func NewRedisRegistryWithClient(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{
		client: client,
		prefix: "retro:",
	}
}

func (r *RedisRegistry) key(jti string) string {
	return r.prefix + "credential:" + jti
}

func (r *RedisRegistry) sessionKey(sessionID string) string {
	return r.prefix + "session-credentials:" + sessionID
}

// Save records an issued credential until it expires.
func (r *RedisRegistry) Save(ctx context.Context, jti string, identity auth.Identity, expiresAt time.Time) error {
	data, err := json.Marshal(record{
		SessionID: identity.SessionID,
		Email:     identity.Email,
		Role:      identity.Role,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("save credential: already expired")
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(jti), data, ttl)
		pipe.SAdd(ctx, r.sessionKey(identity.SessionID), jti)
		pipe.ExpireAt(ctx, r.sessionKey(identity.SessionID), expiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Lookup returns the identity a registered credential was issued for.
func (r *RedisRegistry) Lookup(ctx context.Context, jti string) (auth.Identity, error) {
	raw, err := r.client.Get(ctx, r.key(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return auth.Identity{}, ErrNotFound
	}
	if err != nil {
		return auth.Identity{}, fmt.Errorf("lookup credential: %w", err)
	}

	var data record
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return auth.Identity{}, fmt.Errorf("unmarshal credential: %w", err)
	}
	return auth.Identity{SessionID: data.SessionID, Email: data.Email, Role: data.Role}, nil
}

// RevokeSession deletes every credential issued for a session and returns how
// many were removed.
func (r *RedisRegistry) RevokeSession(ctx context.Context, sessionID string) (int, error) {
	members, err := r.client.SMembers(ctx, r.sessionKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("list session credentials: %w", err)
	}
	keys := make([]string, 0, len(members)+1)
	for _, jti := range members {
		keys = append(keys, r.key(jti))
	}
	keys = append(keys, r.sessionKey(sessionID))

	removed, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("revoke session credentials: %w", err)
	}
	// the set key itself is not a credential
	if len(members) > 0 {
		removed--
	}
	return int(removed), nil
}

// Close closes the Redis connection
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is reachable
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
