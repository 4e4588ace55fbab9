package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DelayedKey is the sorted set holding armed scheduler keys scored by fire time (unix ms).
const DelayedKey = "scheduler:delayed"

// DelayedSet is a Redis sorted-set timer shared by every instance. A key is claimed by removing it,
// so each firing is handed to exactly one caller of Due.
type DelayedSet struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewDelayedSet creates a timer on the default key.
func NewDelayedSet(client *redis.Client, logger *zap.Logger) *DelayedSet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DelayedSet{client: client, key: DelayedKey, logger: logger}
}

// Arm sets (or moves) the fire time of key. Scores round up to the millisecond so a key is never
// handed out before its fire time.
func (d *DelayedSet) Arm(ctx context.Context, key string, fireAt time.Time) error {
	ms := fireAt.UnixMilli()
	if fireAt.After(time.UnixMilli(ms)) {
		ms++
	}
	if err := d.client.ZAdd(ctx, d.key, redis.Z{Score: float64(ms), Member: key}).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", key, err)
	}
	return nil
}

// Disarm removes key if it is armed.
func (d *DelayedSet) Disarm(ctx context.Context, key string) error {
	if err := d.client.ZRem(ctx, d.key, key).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", key, err)
	}
	return nil
}

// Due claims up to limit keys whose fire time is at or before now.
func (d *DelayedSet) Due(ctx context.Context, now time.Time, limit int) ([]string, error) {
	candidates, err := d.client.ZRangeByScore(ctx, d.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore: %w", err)
	}
	claimed := make([]string, 0, len(candidates))
	for _, key := range candidates {
		n, err := d.client.ZRem(ctx, d.key, key).Result()
		if err != nil {
			return claimed, fmt.Errorf("zrem %s: %w", key, err)
		}
		if n == 1 {
			claimed = append(claimed, key)
		}
	}
	if len(claimed) > 0 {
		d.logger.Debug("claimed due keys", zap.Int("count", len(claimed)))
	}
	return claimed, nil
}
