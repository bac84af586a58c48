package pubsub

import (
	"context"
	"fmt"
	"sync"

	"relay-core-integrations-layer/internal/domain"

	"github.com/rs/zerolog"
)

// AssociationEventChannel represents a subscription channel
type AssociationEventChannel struct {
	ID     string
	Filter *AssociationEventFilter
	Events chan domain.IntegrationAssociated
	Done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// AssociationEventFilter filters association events
type AssociationEventFilter struct {
	Providers      []string // Filter by provider keys
	OrganizationID string   // Filter by organization
}

// AssociationPubSub broadcasts integration-associated events to subscribers.
// Delivery is at-most-once per new association and fire-and-forget: a slow or
// full subscriber drops the event, it never blocks or fails the association.
type AssociationPubSub struct {
	mu       sync.RWMutex
	channels map[string]*AssociationEventChannel
	logger   zerolog.Logger
	nextID   int64
	idMu     sync.Mutex
}

// NewAssociationPubSub creates a new association pub/sub system
func NewAssociationPubSub(logger zerolog.Logger) *AssociationPubSub {
	return &AssociationPubSub{
		channels: make(map[string]*AssociationEventChannel),
		logger:   logger,
	}
}

// Subscribe creates a new subscription channel
func (ps *AssociationPubSub) Subscribe(ctx context.Context, filter *AssociationEventFilter) *AssociationEventChannel {
	ps.idMu.Lock()
	id := ps.generateID()
	ps.idMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)

	channel := &AssociationEventChannel{
		ID:     id,
		Filter: filter,
		Events: make(chan domain.IntegrationAssociated, 10), // Buffered channel
		Done:   make(chan struct{}),
		ctx:    subCtx,
		cancel: cancel,
	}

	ps.mu.Lock()
	ps.channels[id] = channel
	ps.mu.Unlock()

	ps.logger.Info().
		Str("channelId", id).
		Interface("filter", filter).
		Msg("Association subscription created")

	// Cleanup when context is cancelled
	go func() {
		<-subCtx.Done()
		ps.Unsubscribe(id)
	}()

	return channel
}

// Unsubscribe removes a subscription channel
func (ps *AssociationPubSub) Unsubscribe(channelID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	channel, exists := ps.channels[channelID]
	if !exists {
		return
	}

	close(channel.Events)
	close(channel.Done)
	channel.cancel()
	delete(ps.channels, channelID)

	ps.logger.Info().
		Str("channelId", channelID).
		Msg("Association subscription removed")
}

// Publish broadcasts an association event to all matching subscribers
func (ps *AssociationPubSub) Publish(event domain.IntegrationAssociated) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	publishedCount := 0
	for _, channel := range ps.channels {
		if ps.matchesFilter(event, channel.Filter) {
			select {
			case channel.Events <- event:
				publishedCount++
			case <-channel.ctx.Done():
				// Channel is closed, skip
			default:
				// Channel buffer full, skip (non-blocking)
				ps.logger.Warn().
					Str("channelId", channel.ID).
					Msg("Channel buffer full, dropping event")
			}
		}
	}

	if publishedCount > 0 {
		ps.logger.Debug().
			Str("provider", event.Integration.Provider).
			Str("organizationId", event.OrganizationID).
			Int("subscribers", publishedCount).
			Msg("Published association event to subscribers")
	}
}

// matchesFilter checks if an event matches the subscription filter
func (ps *AssociationPubSub) matchesFilter(event domain.IntegrationAssociated, filter *AssociationEventFilter) bool {
	if filter == nil {
		return true // No filter, match all
	}

	if len(filter.Providers) > 0 {
		providerMatch := false
		for _, provider := range filter.Providers {
			if event.Integration.Provider == provider {
				providerMatch = true
				break
			}
		}
		if !providerMatch {
			return false
		}
	}

	if filter.OrganizationID != "" && event.OrganizationID != filter.OrganizationID {
		return false
	}

	return true
}

// generateID generates a unique channel ID
func (ps *AssociationPubSub) generateID() string {
	ps.nextID++
	return fmt.Sprintf("channel-%d", ps.nextID)
}

// GetStats returns pub/sub statistics
func (ps *AssociationPubSub) GetStats() map[string]interface{} {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return map[string]interface{}{
		"active_subscriptions": len(ps.channels),
	}
}
