package queue

import (
	"context"
	"fmt"

	"relay-core-integrations-layer/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	pendingListKey = "dispatch:pending"
	payloadHashKey = "dispatch:payloads"
)

// RedisTaskQueue is the producer side of the external worker queue. The
// payload is stored under the correlation token and the token is pushed onto
// a pending list; both writes happen in one pipeline. The worker pops tokens,
// loads payloads, and reports back through the resolve endpoint.
type RedisTaskQueue struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisTaskQueue creates a new Redis-backed task queue producer
func NewRedisTaskQueue(client *redis.Client, logger zerolog.Logger) *RedisTaskQueue {
	return &RedisTaskQueue{
		client: client,
		logger: logger,
	}
}

// Enqueue submits a unit of work for the external executor
func (q *RedisTaskQueue) Enqueue(ctx context.Context, token string, payload []byte) error {
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, payloadHashKey, token, payload)
	pipe.LPush(ctx, pendingListKey, token)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.Debug().
		Str("token", token).
		Int("payloadBytes", len(payload)).
		Msg("Enqueued dispatch task")
	return nil
}

var _ ports.TaskQueue = (*RedisTaskQueue)(nil)
