package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/cmsshop/pkg/config"
	"github.com/go-redis/redis/v8"
)

// EventTTL bounds how long a processed notification id is remembered. It
// comfortably exceeds the processor's retry window.
const EventTTL = 72 * time.Hour

type RedisRepository struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return &RedisRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
		config: cfg,
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisRepository) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

// GetJSON decodes the value at key into dest. A missing key is reported as
// redis.Nil.
func (r *RedisRepository) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func eventKey(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}

// EventProcessed reports whether eventID was recorded as processed.
func (r *RedisRepository) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := r.client.Exists(ctx, eventKey(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkEventProcessed records eventID once its processing completed.
func (r *RedisRepository) MarkEventProcessed(ctx context.Context, eventID string) error {
	return r.client.Set(ctx, eventKey(eventID), time.Now().Unix(), EventTTL).Err()
}
