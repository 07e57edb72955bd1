package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"tillsync/internal/config"
	"tillsync/internal/models"

	"github.com/redis/go-redis/v9"
)

const redisEnvelopeVersion = 1

// redisEnvelope wraps the persisted queue with a schema version so a future
// layout change can migrate on-device data.
type redisEnvelope struct {
	Version int                  `json:"version"`
	Orders  []models.QueuedOrder `json:"orders"`
}

// RedisStore persists the queue as a single versioned JSON value in a
// device-local Redis instance (AOF-backed for durability).
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisClient builds a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisStore(client *redis.Client, deviceID string) *RedisStore {
	return &RedisStore{
		client: client,
		key:    fmt.Sprintf("pos:order_queue:%s", deviceID),
	}
}

func (s *RedisStore) Load(ctx context.Context) ([]models.QueuedOrder, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}

	var envelope redisEnvelope
	if err := json.Unmarshal([]byte(val), &envelope); err != nil {
		return nil, fmt.Errorf("decode queue: %w", err)
	}
	if envelope.Version > redisEnvelopeVersion {
		return nil, fmt.Errorf("queue schema version %d is newer than supported %d",
			envelope.Version, redisEnvelopeVersion)
	}
	return envelope.Orders, nil
}

func (s *RedisStore) Save(ctx context.Context, orders []models.QueuedOrder) error {
	data, err := json.Marshal(redisEnvelope{Version: redisEnvelopeVersion, Orders: orders})
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save queue: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
