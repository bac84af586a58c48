package ports

import (
	"context"
	"errors"

	"relay-core-integrations-layer/internal/domain"
)

// ErrDuplicate is returned by Create methods when the storage-layer unique
// index rejects the insert. Callers re-read and continue idempotently.
var ErrDuplicate = errors.New("duplicate row")

// IntegrationRepository defines the interface for integration persistence
type IntegrationRepository interface {
	// Create inserts a new integration. ErrDuplicate is returned when the
	// (provider, external_id) index already holds a row.
	Create(ctx context.Context, integration *domain.Integration) error

	// GetByID retrieves an integration by ID (nil when absent).
	GetByID(ctx context.Context, id string) (*domain.Integration, error)

	// GetByProviderAndExternalID retrieves an integration by its natural key
	// (nil when absent).
	GetByProviderAndExternalID(ctx context.Context, provider, externalID string) (*domain.Integration, error)
}

// AssociationRepository defines the interface for organization-integration
// association persistence. The (organization_id, integration_id) unique index
// is the sole arbiter of the get-or-create race.
type AssociationRepository interface {
	// Create inserts a new association. ErrDuplicate is returned when the
	// pair already has a row.
	Create(ctx context.Context, assoc *domain.OrganizationIntegration) error

	// GetByPair retrieves the association for a pair (nil when absent).
	GetByPair(ctx context.Context, organizationID, integrationID string) (*domain.OrganizationIntegration, error)

	// UpdateDefaultIdentity sets only the default-identity field on an
	// existing association.
	UpdateDefaultIdentity(ctx context.Context, id, defaultIdentityID string) error
}

// RuleRepository defines the interface for rule persistence. Every mutation
// writes its audit activity row in the same transaction as the rule change.
type RuleRepository interface {
	// CreateWithActivity inserts the rule and one created-activity atomically.
	CreateWithActivity(ctx context.Context, rule *domain.Rule, activity *domain.RuleActivity) error

	// UpdateWithActivity replaces the rule and inserts one updated-activity
	// atomically.
	UpdateWithActivity(ctx context.Context, rule *domain.Rule, activity *domain.RuleActivity) error

	// DeleteWithActivity removes the rule and inserts one deleted-activity
	// atomically.
	DeleteWithActivity(ctx context.Context, ruleID string, activity *domain.RuleActivity) error

	// GetByID retrieves a rule by ID (nil when absent).
	GetByID(ctx context.Context, id string) (*domain.Rule, error)

	// ListByProject retrieves all rules for a project.
	ListByProject(ctx context.Context, projectID string) ([]*domain.Rule, error)

	// ListActivities retrieves the audit trail for a rule, oldest first.
	ListActivities(ctx context.Context, ruleID string) ([]*domain.RuleActivity, error)
}

// ExternalMappingRepository defines the interface for external team/user
// association rows.
type ExternalMappingRepository interface {
	// CreateTeam inserts an external-team mapping. ErrDuplicate on an
	// existing (team, provider, external_name) triple.
	CreateTeam(ctx context.Context, mapping *domain.ExternalTeam) error

	// GetTeam retrieves a mapping by its triple (nil when absent).
	GetTeam(ctx context.Context, teamID, provider, externalName string) (*domain.ExternalTeam, error)

	// ListTeams retrieves all mappings for a team.
	ListTeams(ctx context.Context, teamID string) ([]*domain.ExternalTeam, error)

	// DeleteTeam removes a mapping by ID.
	DeleteTeam(ctx context.Context, id string) error

	// CreateUser inserts an external-user mapping. ErrDuplicate on an
	// existing (member, provider, external_name) triple.
	CreateUser(ctx context.Context, mapping *domain.ExternalUser) error

	// GetUser retrieves a mapping by its triple (nil when absent).
	GetUser(ctx context.Context, memberID, provider, externalName string) (*domain.ExternalUser, error)

	// ListUsers retrieves all mappings for a member.
	ListUsers(ctx context.Context, memberID string) ([]*domain.ExternalUser, error)

	// DeleteUser removes a mapping by ID.
	DeleteUser(ctx context.Context, id string) error
}
