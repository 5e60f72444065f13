package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix is the Redis key prefix for session data.
const keyPrefix = "session:"

// Store persists session payloads keyed by identifier.
type Store interface {
	// Load returns the session data, or nil when the identifier is unknown
	// or expired.
	Load(ctx context.Context, id string) (*Data, error)

	// Save writes the data and (re)sets its expiry.
	Save(ctx context.Context, id string, data *Data, ttl time.Duration) error

	// Touch extends the expiry of an existing session.
	Touch(ctx context.Context, id string, ttl time.Duration) error

	// Delete removes the session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps sessions as JSON strings in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Store backed by the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, id string) (*Data, error) {
	raw, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session from Redis: %w", err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	return &data, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, id string, data *Data, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+id, raw, ttl).Err(); err != nil {
		return fmt.Errorf("storing session in Redis: %w", err)
	}
	return nil
}

// Touch implements Store.
func (s *RedisStore) Touch(ctx context.Context, id string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, keyPrefix+id, ttl).Err(); err != nil {
		return fmt.Errorf("extending session TTL: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("deleting session from Redis: %w", err)
	}
	return nil
}
