package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const redisKeyPrefix = "signalmind:"

// Redis stores each key as a JSON string under a namespaced redis key.
type Redis struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedis connects to redis, retrying the initial ping with exponential
// backoff so a briefly unavailable instance does not kill startup.
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return client.Ping(pingCtx).Err()
	}
	if err := backoff.Retry(ping, policy); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}

	r := &Redis{
		client: client,
		logger: log.With().Str("component", "storage").Str("backend", "redis").Logger(),
	}
	r.logger.Info().Str("addr", addr).Int("db", db).Msg("connected to redis")
	return r, nil
}

func (r *Redis) Load(ctx context.Context, key string, v any) error {
	raw, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("loading %s from redis: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, raw, 0).Err(); err != nil {
		return fmt.Errorf("saving %s to redis: %w", key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
