package reflection

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	markerKeyPrefix = "daybook:reflection:"
	markerTTL       = 48 * time.Hour
)

// RedisMarker claims day keys with SETNX so overlapping scheduled and
// on-demand runs settle on one processor. The TTL keeps stale claims from
// pinning a day forever.
type RedisMarker struct {
	client *redis.Client
}

// NewRedisMarker constructs a RedisMarker.
func NewRedisMarker(client *redis.Client) *RedisMarker {
	return &RedisMarker{client: client}
}

func markerKey(dayKey string) string {
	return markerKeyPrefix + dayKey
}

// Claim reports whether this run acquired the day key.
func (m *RedisMarker) Claim(ctx context.Context, dayKey string) (bool, error) {
	claimed, err := m.client.SetNX(ctx, markerKey(dayKey), time.Now().UTC().Format(time.RFC3339), markerTTL).Result()
	if err != nil {
		return false, fmt.Errorf("reflection: claim %s: %w", dayKey, err)
	}
	return claimed, nil
}

// Release frees a claim after a failed write so a retry can process the day.
func (m *RedisMarker) Release(ctx context.Context, dayKey string) error {
	if err := m.client.Del(ctx, markerKey(dayKey)).Err(); err != nil {
		return fmt.Errorf("reflection: release %s: %w", dayKey, err)
	}
	return nil
}

// NopMarker lets every run proceed. Used when Redis is not configured.
type NopMarker struct{}

// Claim always grants the day key.
func (NopMarker) Claim(ctx context.Context, dayKey string) (bool, error) {
	return true, nil
}

// Release does nothing.
func (NopMarker) Release(ctx context.Context, dayKey string) error {
	return nil
}
