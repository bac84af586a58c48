package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay-core-integrations-layer/internal/domain"
	"relay-core-integrations-layer/internal/ports"
	"relay-core-integrations-layer/internal/providers"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ExternalMappingService manages the pure association rows linking teams and
// members to their identities on external providers.
type ExternalMappingService struct {
	mappingRepo ports.ExternalMappingRepository
	registry    *providers.Registry
	logger      zerolog.Logger
}

// NewExternalMappingService creates a new external mapping service
func NewExternalMappingService(
	mappingRepo ports.ExternalMappingRepository,
	registry *providers.Registry,
	logger zerolog.Logger,
) *ExternalMappingService {
	return &ExternalMappingService{
		mappingRepo: mappingRepo,
		registry:    registry,
		logger:      logger,
	}
}

// Only code-hosting providers carry team/user identities worth mapping.
func (s *ExternalMappingService) validateProvider(provider string) error {
	p, ok := s.registry.Get(provider)
	if !ok {
		return domain.NewValidationError("provider", fmt.Sprintf("Unknown provider %q.", provider))
	}
	if !p.HasFeature(providers.FeatureCodeOwners) {
		return domain.NewValidationError("provider", fmt.Sprintf("Provider %q does not support external mappings.", provider))
	}
	return nil
}

// MapTeam records a team's external identity. Duplicate triples are
// idempotent and return the existing row with created=false.
func (s *ExternalMappingService) MapTeam(ctx context.Context, teamID, provider, externalName string) (*domain.ExternalTeam, bool, error) {
	if err := s.validateProvider(provider); err != nil {
		return nil, false, err
	}
	if externalName == "" {
		return nil, false, domain.NewValidationError("externalName", "This field is required.")
	}

	mapping := &domain.ExternalTeam{
		ID:           uuid.NewString(),
		TeamID:       teamID,
		Provider:     provider,
		ExternalName: externalName,
		CreatedAt:    time.Now(),
	}
	err := s.mappingRepo.CreateTeam(ctx, mapping)
	if err == nil {
		s.logger.Info().
			Str("teamId", teamID).
			Str("provider", provider).
			Str("externalName", externalName).
			Msg("Mapped team to external identity")
		return mapping, true, nil
	}
	if !errors.Is(err, ports.ErrDuplicate) {
		return nil, false, fmt.Errorf("failed to create external team mapping: %w", err)
	}

	existing, err := s.mappingRepo.GetTeam(ctx, teamID, provider, externalName)
	if err != nil {
		return nil, false, fmt.Errorf("failed to re-read external team mapping: %w", err)
	}
	if existing == nil {
		return nil, false, &domain.ConflictError{Resource: "external_team", Detail: "duplicate insert but re-read found nothing"}
	}
	return existing, false, nil
}

// ListTeamMappings retrieves all external identities for a team.
func (s *ExternalMappingService) ListTeamMappings(ctx context.Context, teamID string) ([]*domain.ExternalTeam, error) {
	mappings, err := s.mappingRepo.ListTeams(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list external team mappings: %w", err)
	}
	return mappings, nil
}

// UnmapTeam removes a team mapping.
func (s *ExternalMappingService) UnmapTeam(ctx context.Context, id string) error {
	if err := s.mappingRepo.DeleteTeam(ctx, id); err != nil {
		return fmt.Errorf("failed to delete external team mapping: %w", err)
	}
	return nil
}

// MapUser records a member's external identity. Duplicate triples are
// idempotent and return the existing row with created=false.
func (s *ExternalMappingService) MapUser(ctx context.Context, memberID, provider, externalName string) (*domain.ExternalUser, bool, error) {
	if err := s.validateProvider(provider); err != nil {
		return nil, false, err
	}
	if externalName == "" {
		return nil, false, domain.NewValidationError("externalName", "This field is required.")
	}

	mapping := &domain.ExternalUser{
		ID:           uuid.NewString(),
		MemberID:     memberID,
		Provider:     provider,
		ExternalName: externalName,
		CreatedAt:    time.Now(),
	}
	err := s.mappingRepo.CreateUser(ctx, mapping)
	if err == nil {
		s.logger.Info().
			Str("memberId", memberID).
			Str("provider", provider).
			Str("externalName", externalName).
			Msg("Mapped member to external identity")
		return mapping, true, nil
	}
	if !errors.Is(err, ports.ErrDuplicate) {
		return nil, false, fmt.Errorf("failed to create external user mapping: %w", err)
	}

	existing, err := s.mappingRepo.GetUser(ctx, memberID, provider, externalName)
	if err != nil {
		return nil, false, fmt.Errorf("failed to re-read external user mapping: %w", err)
	}
	if existing == nil {
		return nil, false, &domain.ConflictError{Resource: "external_user", Detail: "duplicate insert but re-read found nothing"}
	}
	return existing, false, nil
}

// ListUserMappings retrieves all external identities for a member.
func (s *ExternalMappingService) ListUserMappings(ctx context.Context, memberID string) ([]*domain.ExternalUser, error) {
	mappings, err := s.mappingRepo.ListUsers(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list external user mappings: %w", err)
	}
	return mappings, nil
}

// UnmapUser removes a member mapping.
func (s *ExternalMappingService) UnmapUser(ctx context.Context, id string) error {
	if err := s.mappingRepo.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("failed to delete external user mapping: %w", err)
	}
	return nil
}
