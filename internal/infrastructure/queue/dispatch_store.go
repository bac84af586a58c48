package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"relay-core-integrations-layer/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	unitKeyPrefix = "dispatch:unit:"

	// recordRetention bounds how long token state is kept. Terminal records
	// stay pollable until expiry; an expired token resolves as unknown.
	recordRetention = 24 * time.Hour

	transitionRetries = 5
)

// RedisDispatchStore keeps correlation-token state in Redis, shared by every
// API replica and the executor. Whichever process receives the worker's
// result sees the same record the scheduling process wrote, and token state
// survives process restarts.
type RedisDispatchStore struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisDispatchStore creates a new Redis-backed dispatch store
func NewRedisDispatchStore(client *redis.Client, logger zerolog.Logger) *RedisDispatchStore {
	return &RedisDispatchStore{
		client: client,
		logger: logger,
	}
}

func unitKey(token string) string {
	return unitKeyPrefix + token
}

// CreateRecord stores a new queued record, rejecting token reuse
func (s *RedisDispatchStore) CreateRecord(ctx context.Context, record *ports.DispatchRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch record: %w", err)
	}

	created, err := s.client.SetNX(ctx, unitKey(record.Token), data, recordRetention).Result()
	if err != nil {
		return fmt.Errorf("failed to store dispatch record: %w", err)
	}
	if !created {
		return fmt.Errorf("dispatch record %s: %w", record.Token, ports.ErrDuplicate)
	}
	return nil
}

// GetRecord retrieves a record, nil when absent or expired
func (s *RedisDispatchStore) GetRecord(ctx context.Context, token string) (*ports.DispatchRecord, error) {
	raw, err := s.client.Get(ctx, unitKey(token)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatch record: %w", err)
	}

	var record ports.DispatchRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to decode dispatch record: %w", err)
	}
	return &record, nil
}

// TransitionRecord compare-and-sets the state under WATCH; a concurrent
// writer to the same key triggers a bounded retry, so exactly one of two
// racing resolves wins the queued record.
func (s *RedisDispatchStore) TransitionRecord(ctx context.Context, token, state, resultChannelID, resultErr string, overwrite bool) (*ports.DispatchRecord, error) {
	key := unitKey(token)
	var updated *ports.DispatchRecord

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			updated = nil
			return nil
		}
		if err != nil {
			return err
		}

		var record ports.DispatchRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return err
		}
		if record.State != ports.RecordStateQueued && !overwrite {
			return ports.ErrAlreadyResolved
		}

		record.State = state
		record.ResultChannelID = resultChannelID
		record.ResultErr = resultErr
		record.FinishedAt = time.Now()

		data, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, recordRetention)
			return nil
		}); err != nil {
			return err
		}
		updated = &record
		return nil
	}

	for attempt := 0; attempt < transitionRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, ports.ErrAlreadyResolved) {
			return nil, err
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, fmt.Errorf("failed to transition dispatch record: %w", err)
	}
	return nil, fmt.Errorf("failed to transition dispatch record: %w", redis.TxFailedErr)
}

// DeleteRecord removes a record
func (s *RedisDispatchStore) DeleteRecord(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, unitKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete dispatch record: %w", err)
	}
	return nil
}

var _ ports.DispatchStore = (*RedisDispatchStore)(nil)
