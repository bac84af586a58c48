package ports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"relay-core-integrations-layer/internal/domain"
)

// TaskQueue is the producer side of the external worker queue. The core only
// enqueues; execution belongs to the external executor, which reports back
// through the dispatcher's Resolve path.
type TaskQueue interface {
	Enqueue(ctx context.Context, token string, payload []byte) error
}

// ChannelResolver resolves a human-entered channel name to the provider-side
// channel ID. Implemented per provider in infrastructure.
type ChannelResolver interface {
	ResolveChannel(ctx context.Context, name string) (string, error)
}

// AssociationPublisher broadcasts integration-associated events to
// subscribers. Delivery is fire-and-forget: subscriber failures never reach
// the caller.
type AssociationPublisher interface {
	Publish(event domain.IntegrationAssociated)
}

// ErrAlreadyResolved is returned by DispatchStore.TransitionRecord when the
// record already reached a terminal state and overwriting is disabled.
var ErrAlreadyResolved = errors.New("dispatch record already resolved")

// Record states for DispatchStore. queued -> resolved | failed, no
// transition out of a terminal state.
const (
	RecordStateQueued   = "queued"
	RecordStateResolved = "resolved"
	RecordStateFailed   = "failed"
)

// DispatchRecord is the persisted form of one scheduled side-effect. The
// snapshot is opaque to the store.
type DispatchRecord struct {
	Token           string          `json:"token"`
	ProjectID       string          `json:"project_id"`
	Snapshot        json.RawMessage `json:"snapshot,omitempty"`
	State           string          `json:"state"`
	ResultChannelID string          `json:"result_channel_id,omitempty"`
	ResultErr       string          `json:"result_error,omitempty"`
	ScheduledAt     time.Time       `json:"scheduled_at"`
	FinishedAt      time.Time       `json:"finished_at"`
}

// DispatchStore persists correlation-token state in shared storage. A token
// scheduled by one process can be resolved by any other and survives
// restarts; processes hold no token state of their own.
type DispatchStore interface {
	// CreateRecord stores a new queued record. ErrDuplicate when the token
	// already has one.
	CreateRecord(ctx context.Context, record *DispatchRecord) error

	// GetRecord retrieves a record (nil when absent or expired).
	GetRecord(ctx context.Context, token string) (*DispatchRecord, error)

	// TransitionRecord moves a record to a terminal state and stores the
	// result, returning the updated record. Nil when the token is unknown;
	// ErrAlreadyResolved when the record is terminal and overwrite is false.
	TransitionRecord(ctx context.Context, token, state, resultChannelID, resultErr string, overwrite bool) (*DispatchRecord, error)

	// DeleteRecord removes a record.
	DeleteRecord(ctx context.Context, token string) error
}
