package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"relay-core-integrations-layer/internal/application"
	"relay-core-integrations-layer/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	pendingListKey = "dispatch:pending"
	payloadHashKey = "dispatch:payloads"
)

// Worker is an embedded executor for the dispatch queue, intended for
// single-process deployments and development. Production runs an external
// executor against the same queue; the dispatcher only ever sees Resolve
// calls either way.
type Worker struct {
	client   *redis.Client
	resolver ports.ChannelResolver
	dispatch *application.Dispatcher
	logger   zerolog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a new embedded dispatch worker
func New(client *redis.Client, resolver ports.ChannelResolver, dispatch *application.Dispatcher, logger zerolog.Logger) *Worker {
	return &Worker{
		client:   client,
		resolver: resolver,
		dispatch: dispatch,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins consuming the pending list until Stop is called.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	go func() {
		defer close(w.done)
		w.logger.Info().Msg("Embedded dispatch worker started")
		for {
			if err := w.step(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				w.logger.Error().Err(err).Msg("Dispatch worker step failed")
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// Stop halts the worker and waits for the current unit to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
	w.logger.Info().Msg("Embedded dispatch worker stopped")
}

type dispatchPayload struct {
	Token     string                `json:"token"`
	ProjectID string                `json:"project_id"`
	Input     application.RuleInput `json:"input"`
}

func (w *Worker) step(ctx context.Context) error {
	popped, err := w.client.BRPop(ctx, 5*time.Second, pendingListKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	token := popped[1]

	raw, err := w.client.HGet(ctx, payloadHashKey, token).Result()
	if err != nil {
		return err
	}
	w.client.HDel(ctx, payloadHashKey, token)

	var payload dispatchPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		w.logger.Error().Err(err).Str("token", token).Msg("Dropping malformed dispatch payload")
		return nil
	}

	result := w.execute(ctx, payload)
	if err := w.dispatch.Resolve(ctx, token, result); err != nil {
		// A stale token (superseded schedule, restarted process) is harmless.
		w.logger.Warn().Err(err).Str("token", token).Msg("Dispatch resolve rejected")
	}
	return nil
}

func (w *Worker) execute(ctx context.Context, payload dispatchPayload) application.DispatchResult {
	for _, action := range payload.Input.Actions {
		if action.Channel == "" || action.ChannelID != "" {
			continue
		}
		channelID, err := w.resolver.ResolveChannel(ctx, action.Channel)
		if err != nil {
			return application.DispatchResult{Err: err.Error()}
		}
		return application.DispatchResult{ChannelID: channelID}
	}
	return application.DispatchResult{}
}
