package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultKeyPrefix namespaces registry keys in a shared Redis
const DefaultKeyPrefix = "warden:refresh:"

// RedisRegistry keeps tokens in Redis so every instance shares them.
// Rotation watches the old key and retires it and stores the successor in one
// MULTI/EXEC; of concurrent rotations of one token only one transaction
// commits.
type RedisRegistry struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRegistry creates a registry over client. The registry owns client
// and closes it on Close.
func NewRedisRegistry(client *redis.Client, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisRegistry{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (r *RedisRegistry) key(token string) string {
	return r.prefix + Key(token)
}

// encode returns the stored form of rec and its remaining lifetime
func (r *RedisRegistry) encode(rec Record) ([]byte, time.Duration, error) {
	ttl := rec.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil, ttl, nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal refresh record: %w", err)
	}
	return data, ttl, nil
}

func (r *RedisRegistry) set(ctx context.Context, token string, rec Record) error {
	data, ttl, err := r.encode(rec)
	if err != nil || ttl <= 0 {
		return err
	}
	if err := r.client.Set(ctx, r.key(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (r *RedisRegistry) decode(data string) (*Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh record: %w", err)
	}
	if rec.Expired(r.now()) {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (r *RedisRegistry) Put(ctx context.Context, token string, rec Record) error {
	return r.set(ctx, token, rec)
}

func (r *RedisRegistry) Get(ctx context.Context, token string) (*Record, error) {
	data, err := r.client.Get(ctx, r.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh token: %w", err)
	}
	return r.decode(data)
}

func (r *RedisRegistry) Rotate(ctx context.Context, oldToken, newToken string, rec Record) (bool, error) {
	data, ttl, err := r.encode(rec)
	if err != nil {
		return false, err
	}
	if ttl <= 0 {
		return false, ErrExpiredRecord
	}

	oldKey := r.key(oldToken)
	var rotated bool
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, oldKey).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		live := true
		if _, err := r.decode(current); err != nil {
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			live = false
		}

		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, oldKey)
			if live {
				pipe.Set(ctx, r.key(newToken), data, ttl)
			}
			return nil
		}); err != nil {
			return err
		}
		rotated = live
		return nil
	}, oldKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return rotated, nil
}

func (r *RedisRegistry) Delete(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.key(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
