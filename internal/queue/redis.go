package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time check that RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)

const defaultQueueKey = "clipflow:jobs"

// blockTimeout bounds each BRPOP so Dequeue can observe context cancellation.
const blockTimeout = 2 * time.Second

// RedisQueue dispatches job IDs through a Redis list: LPUSH to enqueue,
// BRPOP to consume. IDs pushed while no worker is running are delivered when
// one comes back.
type RedisQueue struct {
	client redis.Cmdable
	key    string
}

// NewRedisQueue creates a queue on the given Redis client. An empty key
// falls back to the default list key.
func NewRedisQueue(client redis.Cmdable, key string) *RedisQueue {
	if key == "" {
		key = defaultQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

// Enqueue pushes a job ID onto the list.
func (q *RedisQueue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.key, jobID).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks until a job ID is available or the context is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	for {
		res, err := q.client.BRPop(ctx, blockTimeout, q.key).Result()
		if err == nil {
			// BRPOP returns [key, value].
			return res[1], nil
		}
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return "", fmt.Errorf("dequeue cancelled: %w", ctx.Err())
			}
			continue
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("dequeue cancelled: %w", ctx.Err())
		}
		return "", fmt.Errorf("dequeue job: %w", err)
	}
}

// Close is a no-op; the Redis client is owned by the caller.
func (q *RedisQueue) Close() error {
	return nil
}
