package domain

import "time"

// ObjectStatus is the lifecycle status shared by integrations and their
// per-organization associations.
type ObjectStatus string

const (
	StatusActive          ObjectStatus = "active"
	StatusDisabled        ObjectStatus = "disabled"
	StatusPendingDeletion ObjectStatus = "pending-deletion"
)

// Integration represents a configured connection to a third-party provider
// (github, gitlab, slack). One integration is shared by many organizations
// through OrganizationIntegration associations.
type Integration struct {
	ID         string `json:"id" bson:"_id"`
	Provider   string `json:"provider" bson:"provider"`       // Provider key, resolvable in the registry
	ExternalID string `json:"external_id" bson:"external_id"` // Provider-side identity, unique per provider
	Name       string `json:"name" bson:"name"`
	// Metadata may hold provider credentials but never organization-specific
	// configuration: the integration row is shared among organizations.
	Metadata  map[string]any `json:"metadata" bson:"metadata"`
	Status    ObjectStatus   `json:"status" bson:"status"`
	CreatedAt time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" bson:"updated_at"`
}

// OrganizationIntegration binds an integration to one organization. Exactly
// one row exists per (organization, integration) pair; organization-specific
// configuration lives here, never on the integration itself.
type OrganizationIntegration struct {
	ID                string         `json:"id" bson:"_id"`
	OrganizationID    string         `json:"organization_id" bson:"organization_id"`
	IntegrationID     string         `json:"integration_id" bson:"integration_id"`
	Config            map[string]any `json:"config" bson:"config"`
	DefaultIdentityID string         `json:"default_identity_id,omitempty" bson:"default_identity_id,omitempty"`
	Status            ObjectStatus   `json:"status" bson:"status"`
	CreatedAt         time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" bson:"updated_at"`
}

// IntegrationAssociated is broadcast exactly once when a new association row
// is created. Idempotent re-association does not emit it.
type IntegrationAssociated struct {
	Integration    *Integration
	OrganizationID string
	ActorID        string
}
