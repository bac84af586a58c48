package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay-core-integrations-layer/internal/domain"
	"relay-core-integrations-layer/internal/infrastructure/metrics"
	"relay-core-integrations-layer/internal/ports"
	"relay-core-integrations-layer/internal/providers"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AssociationService manages integrations and their at-most-one association
// with each organization.
type AssociationService struct {
	integrationRepo ports.IntegrationRepository
	associationRepo ports.AssociationRepository
	registry        *providers.Registry
	publisher       ports.AssociationPublisher
	metrics         *metrics.Metrics
	logger          zerolog.Logger
}

// NewAssociationService creates a new association service
func NewAssociationService(
	integrationRepo ports.IntegrationRepository,
	associationRepo ports.AssociationRepository,
	registry *providers.Registry,
	publisher ports.AssociationPublisher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *AssociationService {
	return &AssociationService{
		integrationRepo: integrationRepo,
		associationRepo: associationRepo,
		registry:        registry,
		publisher:       publisher,
		metrics:         m,
		logger:          logger,
	}
}

// CreateIntegrationInput represents input for creating an integration
type CreateIntegrationInput struct {
	Provider   string
	ExternalID string
	Name       string
	Metadata   map[string]any
}

// CreateIntegration creates an integration for a (provider, external_id)
// pair, idempotently returning the existing row when the pair is taken.
func (s *AssociationService) CreateIntegration(ctx context.Context, input CreateIntegrationInput) (*domain.Integration, bool, error) {
	if input.Provider == "" {
		return nil, false, domain.NewValidationError("provider", "Provider is required.")
	}
	if _, ok := s.registry.Get(input.Provider); !ok {
		return nil, false, domain.NewValidationError("provider", fmt.Sprintf("Unknown provider %q.", input.Provider))
	}
	if input.ExternalID == "" {
		return nil, false, domain.NewValidationError("externalId", "External ID is required.")
	}

	integration := &domain.Integration{
		ID:         uuid.NewString(),
		Provider:   input.Provider,
		ExternalID: input.ExternalID,
		Name:       input.Name,
		Metadata:   input.Metadata,
		Status:     domain.StatusActive,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	err := s.integrationRepo.Create(ctx, integration)
	if err == nil {
		s.logger.Info().
			Str("provider", input.Provider).
			Str("externalId", input.ExternalID).
			Str("integrationId", integration.ID).
			Msg("Created new integration")
		return integration, true, nil
	}
	if !errors.Is(err, ports.ErrDuplicate) {
		s.logger.Error().Err(err).Str("provider", input.Provider).Msg("Failed to create integration")
		return nil, false, fmt.Errorf("failed to create integration: %w", err)
	}

	existing, err := s.integrationRepo.GetByProviderAndExternalID(ctx, input.Provider, input.ExternalID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to re-read integration: %w", err)
	}
	if existing == nil {
		return nil, false, &domain.ConflictError{
			Resource: "integration",
			Detail:   fmt.Sprintf("duplicate insert for (%s, %s) but re-read found nothing", input.Provider, input.ExternalID),
		}
	}
	return existing, false, nil
}

// GetIntegration retrieves an integration by ID.
func (s *AssociationService) GetIntegration(ctx context.Context, id string) (*domain.Integration, error) {
	integration, err := s.integrationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	if integration == nil {
		return nil, fmt.Errorf("integration not found")
	}
	return integration, nil
}

// Associate binds an integration to an organization at most once. The insert
// races against concurrent callers; the storage unique index on
// (organization_id, integration_id) is the sole arbiter, and a duplicate-key
// insert falls back to re-reading the winner's row. Re-association is
// idempotent and only updates the default identity when one is supplied.
//
// A new association is broadcast to subscribers fire-and-forget; an
// idempotent re-association never is.
func (s *AssociationService) Associate(ctx context.Context, organizationID, integrationID, defaultIdentityID string) (*domain.OrganizationIntegration, bool, error) {
	integration, err := s.integrationRepo.GetByID(ctx, integrationID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get integration: %w", err)
	}
	if integration == nil {
		return nil, false, domain.NewValidationError("integrationId", "Integration does not exist.")
	}

	assoc := &domain.OrganizationIntegration{
		ID:                uuid.NewString(),
		OrganizationID:    organizationID,
		IntegrationID:     integrationID,
		Config:            map[string]any{},
		DefaultIdentityID: defaultIdentityID,
		Status:            domain.StatusActive,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}

	err = s.associationRepo.Create(ctx, assoc)
	if err == nil {
		s.metrics.AssociationsCreated.Inc()
		s.logger.Info().
			Str("organizationId", organizationID).
			Str("integrationId", integrationID).
			Msg("Associated integration with organization")
		s.publisher.Publish(domain.IntegrationAssociated{
			Integration:    integration,
			OrganizationID: organizationID,
			ActorID:        domain.GetActorIDFromContext(ctx),
		})
		return assoc, true, nil
	}
	if !errors.Is(err, ports.ErrDuplicate) {
		s.logger.Error().
			Err(err).
			Str("organizationId", organizationID).
			Str("integrationId", integrationID).
			Msg("Failed to create association")
		return nil, false, fmt.Errorf("failed to create association: %w", err)
	}

	existing, err := s.associationRepo.GetByPair(ctx, organizationID, integrationID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to re-read association: %w", err)
	}
	if existing == nil {
		// The unique index rejected our insert but the row is gone. The
		// storage layer broke its contract.
		s.logger.Error().
			Str("organizationId", organizationID).
			Str("integrationId", integrationID).
			Msg("Association duplicate insert but re-read found nothing")
		return nil, false, &domain.ConflictError{
			Resource: "organization_integration",
			Detail:   fmt.Sprintf("duplicate insert for (%s, %s) but re-read found nothing", organizationID, integrationID),
		}
	}

	if defaultIdentityID != "" && existing.DefaultIdentityID != defaultIdentityID {
		if err := s.associationRepo.UpdateDefaultIdentity(ctx, existing.ID, defaultIdentityID); err != nil {
			return nil, false, fmt.Errorf("failed to update default identity: %w", err)
		}
		existing.DefaultIdentityID = defaultIdentityID
	}

	s.logger.Info().
		Str("organizationId", organizationID).
		Str("integrationId", integrationID).
		Msg("Association already exists, returning existing row")
	return existing, false, nil
}
