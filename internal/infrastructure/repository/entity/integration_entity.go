package entity

import (
	"time"

	"relay-core-integrations-layer/internal/domain"
)

// MongoIntegrationDoc represents an integration in MongoDB
type MongoIntegrationDoc struct {
	ID         string         `bson:"_id"`
	Provider   string         `bson:"provider"`
	ExternalID string         `bson:"externalId"`
	Name       string         `bson:"name"`
	Metadata   map[string]any `bson:"metadata,omitempty"`
	Status     string         `bson:"status"`
	CreatedAt  time.Time      `bson:"createdAt"`
	UpdatedAt  time.Time      `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoIntegrationDoc) ToDomain() *domain.Integration {
	return &domain.Integration{
		ID:         d.ID,
		Provider:   d.Provider,
		ExternalID: d.ExternalID,
		Name:       d.Name,
		Metadata:   d.Metadata,
		Status:     domain.ObjectStatus(d.Status),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// MongoIntegrationDocFromDomain converts a domain entity to a MongoDB document
func MongoIntegrationDocFromDomain(integration *domain.Integration) *MongoIntegrationDoc {
	return &MongoIntegrationDoc{
		ID:         integration.ID,
		Provider:   integration.Provider,
		ExternalID: integration.ExternalID,
		Name:       integration.Name,
		Metadata:   integration.Metadata,
		Status:     string(integration.Status),
		CreatedAt:  integration.CreatedAt,
		UpdatedAt:  integration.UpdatedAt,
	}
}

// MongoAssociationDoc represents an organization-integration association in
// MongoDB. The unique index on (organizationId, integrationId) is the hard
// schema constraint behind the race-safe get-or-create.
type MongoAssociationDoc struct {
	ID                string         `bson:"_id"`
	OrganizationID    string         `bson:"organizationId"`
	IntegrationID     string         `bson:"integrationId"`
	Config            map[string]any `bson:"config,omitempty"`
	DefaultIdentityID string         `bson:"defaultIdentityId,omitempty"`
	Status            string         `bson:"status"`
	CreatedAt         time.Time      `bson:"createdAt"`
	UpdatedAt         time.Time      `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoAssociationDoc) ToDomain() *domain.OrganizationIntegration {
	return &domain.OrganizationIntegration{
		ID:                d.ID,
		OrganizationID:    d.OrganizationID,
		IntegrationID:     d.IntegrationID,
		Config:            d.Config,
		DefaultIdentityID: d.DefaultIdentityID,
		Status:            domain.ObjectStatus(d.Status),
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

// MongoAssociationDocFromDomain converts a domain entity to a MongoDB document
func MongoAssociationDocFromDomain(assoc *domain.OrganizationIntegration) *MongoAssociationDoc {
	return &MongoAssociationDoc{
		ID:                assoc.ID,
		OrganizationID:    assoc.OrganizationID,
		IntegrationID:     assoc.IntegrationID,
		Config:            assoc.Config,
		DefaultIdentityID: assoc.DefaultIdentityID,
		Status:            string(assoc.Status),
		CreatedAt:         assoc.CreatedAt,
		UpdatedAt:         assoc.UpdatedAt,
	}
}
