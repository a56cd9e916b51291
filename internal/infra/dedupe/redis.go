package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"horamed/internal/domain/reminder"
)

var _ reminder.DispatchMarker = (*RedisMarker)(nil)

// RedisMarker remembers dispatched dose occurrences with a SETNX-and-TTL
// key per (doseID, scheduledAt), so repeated scanner polls and concurrent
// scanner sessions dispatch each occurrence once.
type RedisMarker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMarker creates a new Redis-backed dispatch marker.
func NewRedisMarker(redisAddr, password string, db int, ttl time.Duration) *RedisMarker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	})
	return &RedisMarker{client: client, ttl: ttl}
}

// MarkDispatched records the occurrence and reports whether this caller was
// the first to do so.
func (m *RedisMarker) MarkDispatched(ctx context.Context, doseID string, scheduledAt time.Time) (bool, error) {
	key := fmt.Sprintf("horamed:dispatched:%s:%d", doseID, scheduledAt.UTC().Unix())

	first, err := m.client.SetNX(ctx, key, 1, m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("marking dose dispatched: %w", err)
	}
	return first, nil
}

// Close closes the Redis connection.
func (m *RedisMarker) Close() error {
	return m.client.Close()
}
