package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time check that RedisLedger implements Ledger.
var _ Ledger = (*RedisLedger)(nil)

const keyPrefix = "clipflow:progress:"

// RedisLedger stores progress entries as JSON values with a TTL. Writes are
// last-write-wins, which is safe because each job has exactly one processor.
type RedisLedger struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisLedger creates a ledger on the given Redis client. A zero ttl
// falls back to DefaultTTL.
func NewRedisLedger(client redis.Cmdable, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLedger{client: client, ttl: ttl}
}

// Set upserts the progress entry, refreshing its TTL.
func (l *RedisLedger) Set(ctx context.Context, jobID string, p Progress) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := l.client.Set(ctx, keyPrefix+jobID, b, l.ttl).Err(); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}

// Get returns the last written entry or ErrNotFound.
func (l *RedisLedger) Get(ctx context.Context, jobID string) (Progress, error) {
	b, err := l.client.Get(ctx, keyPrefix+jobID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Progress{}, ErrNotFound
		}
		return Progress{}, fmt.Errorf("read progress: %w", err)
	}

	var p Progress
	if err := json.Unmarshal(b, &p); err != nil {
		return Progress{}, fmt.Errorf("unmarshal progress: %w", err)
	}
	return p, nil
}

// Delete removes the entry for a job.
func (l *RedisLedger) Delete(ctx context.Context, jobID string) error {
	if err := l.client.Del(ctx, keyPrefix+jobID).Err(); err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	return nil
}
