package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"relay-core-integrations-layer/internal/domain"
	"relay-core-integrations-layer/internal/infrastructure/metrics"
	"relay-core-integrations-layer/internal/ports"

	"github.com/rs/zerolog"
)

// UnitState is the dispatch state machine: queued -> resolved | failed.
// There is no transition out of a terminal state.
type UnitState string

const (
	UnitQueued   UnitState = ports.RecordStateQueued
	UnitResolved UnitState = ports.RecordStateResolved
	UnitFailed   UnitState = ports.RecordStateFailed
)

// DispatchResult is what the external worker reports back for a token.
type DispatchResult struct {
	ChannelID string `json:"channel_id,omitempty"`
	Err       string `json:"error,omitempty"`
}

// DispatchUnit is one scheduled side-effect keyed by its correlation token.
type DispatchUnit struct {
	Token       string
	ProjectID   string
	Snapshot    RuleInput
	State       UnitState
	Result      DispatchResult
	ScheduledAt time.Time
	FinishedAt  time.Time
}

// ResolveCallback runs after a unit reaches a terminal state. Best-effort:
// a failing callback is logged, never retried.
type ResolveCallback func(ctx context.Context, unit DispatchUnit) error

// Dispatcher schedules provider-side follow-up work on the external worker
// queue and tracks each unit's terminal state. Token state lives in the
// shared store: a token scheduled by one process can be resolved by any
// replica and survives restarts; the dispatcher holds no per-token state.
// The only in-process coupling is the resolve callback, which every process
// registers identically at wiring time.
type Dispatcher struct {
	store   ports.DispatchStore
	queue   ports.TaskQueue
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu         sync.RWMutex
	onResolved ResolveCallback

	// overwriteResolve allows a second Resolve on a terminal token to
	// overwrite the stored result and re-fire the callback. When false the
	// second call is rejected with AlreadyResolvedError.
	overwriteResolve bool
}

// NewDispatcher creates a dispatcher producing onto the given queue, with
// token state kept in the given store.
func NewDispatcher(store ports.DispatchStore, queue ports.TaskQueue, overwriteResolve bool, m *metrics.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:            store,
		queue:            queue,
		logger:           logger,
		metrics:          m,
		overwriteResolve: overwriteResolve,
	}
}

// OnResolved registers the callback fired once per accepted resolution.
// Wiring registers the same callback in every process, so whichever replica
// receives the worker's result runs it.
func (d *Dispatcher) OnResolved(fn ResolveCallback) {
	d.mu.Lock()
	d.onResolved = fn
	d.mu.Unlock()
}

func recordToUnit(record *ports.DispatchRecord) (DispatchUnit, error) {
	var snapshot RuleInput
	if len(record.Snapshot) > 0 {
		if err := json.Unmarshal(record.Snapshot, &snapshot); err != nil {
			return DispatchUnit{}, fmt.Errorf("failed to decode dispatch snapshot: %w", err)
		}
	}
	return DispatchUnit{
		Token:       record.Token,
		ProjectID:   record.ProjectID,
		Snapshot:    snapshot,
		State:       UnitState(record.State),
		Result:      DispatchResult{ChannelID: record.ResultChannelID, Err: record.ResultErr},
		ScheduledAt: record.ScheduledAt,
		FinishedAt:  record.FinishedAt,
	}, nil
}

type dispatchPayload struct {
	Token     string    `json:"token"`
	ProjectID string    `json:"project_id"`
	Input     RuleInput `json:"input"`
}

// Schedule enqueues a unit of work under a caller-supplied correlation token.
// Token reuse is a programming error and fails with InvariantError. A
// superseding schedule for the same logical rule must use a fresh token; the
// old token's eventual resolution is harmless.
func (d *Dispatcher) Schedule(ctx context.Context, token, projectID string, snapshot RuleInput) error {
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch snapshot: %w", err)
	}

	record := &ports.DispatchRecord{
		Token:       token,
		ProjectID:   projectID,
		Snapshot:    snapshotJSON,
		State:       ports.RecordStateQueued,
		ScheduledAt: time.Now(),
	}
	if err := d.store.CreateRecord(ctx, record); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return &domain.InvariantError{Detail: "duplicate correlation token " + token}
		}
		return fmt.Errorf("failed to store dispatch record: %w", err)
	}

	payload, err := json.Marshal(dispatchPayload{Token: token, ProjectID: projectID, Input: snapshot})
	if err != nil {
		d.discard(ctx, token)
		return fmt.Errorf("failed to marshal dispatch payload: %w", err)
	}

	if err := d.queue.Enqueue(ctx, token, payload); err != nil {
		d.discard(ctx, token)
		d.logger.Error().
			Err(err).
			Str("token", token).
			Str("projectId", projectID).
			Msg("Failed to enqueue dispatch unit")
		return fmt.Errorf("failed to enqueue dispatch unit: %w", err)
	}

	d.metrics.DispatchesScheduled.Inc()
	d.logger.Info().
		Str("token", token).
		Str("projectId", projectID).
		Msg("Scheduled dispatch unit")
	return nil
}

func (d *Dispatcher) discard(ctx context.Context, token string) {
	if err := d.store.DeleteRecord(ctx, token); err != nil {
		d.logger.Error().Err(err).Str("token", token).Msg("Failed to discard dispatch record")
	}
}

// Resolve records the worker's result for a token and fires the registered
// callback exactly once per accepted resolution. Resolving an unknown token
// is an InvariantError; resolving a terminal token is rejected with
// AlreadyResolvedError unless overwriting is enabled. The transition runs
// through the store, so the call succeeds no matter which process scheduled
// the token.
func (d *Dispatcher) Resolve(ctx context.Context, token string, result DispatchResult) error {
	state := ports.RecordStateResolved
	if result.Err != "" {
		state = ports.RecordStateFailed
	}

	record, err := d.store.TransitionRecord(ctx, token, state, result.ChannelID, result.Err, d.overwriteResolve)
	if errors.Is(err, ports.ErrAlreadyResolved) {
		return &domain.AlreadyResolvedError{Token: token}
	}
	if err != nil {
		return fmt.Errorf("failed to transition dispatch record: %w", err)
	}
	if record == nil {
		return &domain.InvariantError{Detail: "resolve for unknown correlation token " + token}
	}

	unit, err := recordToUnit(record)
	if err != nil {
		return err
	}

	d.metrics.DispatchesFinished.WithLabelValues(string(unit.State)).Inc()
	d.logger.Info().
		Str("token", token).
		Str("projectId", unit.ProjectID).
		Str("state", string(unit.State)).
		Msg("Dispatch unit resolved")

	d.mu.RLock()
	callback := d.onResolved
	d.mu.RUnlock()
	if callback != nil {
		if err := callback(ctx, unit); err != nil {
			d.logger.Error().
				Err(err).
				Str("token", token).
				Str("projectId", unit.ProjectID).
				Msg("Dispatch resolve callback failed")
		}
	}
	return nil
}

// Get returns the unit for a token.
func (d *Dispatcher) Get(ctx context.Context, token string) (DispatchUnit, bool, error) {
	record, err := d.store.GetRecord(ctx, token)
	if err != nil {
		return DispatchUnit{}, false, fmt.Errorf("failed to get dispatch record: %w", err)
	}
	if record == nil {
		return DispatchUnit{}, false, nil
	}
	unit, err := recordToUnit(record)
	if err != nil {
		return DispatchUnit{}, false, err
	}
	return unit, true, nil
}
