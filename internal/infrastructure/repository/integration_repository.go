package repository

import (
	"context"
	"fmt"
	"time"

	"relay-core-integrations-layer/internal/domain"
	"relay-core-integrations-layer/internal/infrastructure/repository/entity"
	"relay-core-integrations-layer/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoIntegrationRepository implements IntegrationRepository using MongoDB
type MongoIntegrationRepository struct {
	collection *mongo.Collection
}

// NewMongoIntegrationRepository creates a new MongoDB integration repository
func NewMongoIntegrationRepository(db *mongo.Database) *MongoIntegrationRepository {
	return &MongoIntegrationRepository{
		collection: db.Collection("integrations"),
	}
}

// EnsureIndexes creates the unique (provider, externalId) index. It must
// exist before any Create call: the index is the schema constraint, not an
// application check.
func (r *MongoIntegrationRepository) EnsureIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "externalId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("failed to create integration index: %w", err)
	}
	return nil
}

// Create inserts a new integration
func (r *MongoIntegrationRepository) Create(ctx context.Context, integration *domain.Integration) error {
	doc := entity.MongoIntegrationDocFromDomain(integration)
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("integration (%s, %s): %w", integration.Provider, integration.ExternalID, ports.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create integration: %w", err)
	}

	return nil
}

// GetByID retrieves an integration by ID
func (r *MongoIntegrationRepository) GetByID(ctx context.Context, id string) (*domain.Integration, error) {
	var doc entity.MongoIntegrationDoc
	filter := bson.M{"_id": id}

	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}

	return doc.ToDomain(), nil
}

// GetByProviderAndExternalID retrieves an integration by its natural key
func (r *MongoIntegrationRepository) GetByProviderAndExternalID(ctx context.Context, provider, externalID string) (*domain.Integration, error) {
	var doc entity.MongoIntegrationDoc
	filter := bson.M{
		"provider":   provider,
		"externalId": externalID,
	}

	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}

	return doc.ToDomain(), nil
}

// MongoAssociationRepository implements AssociationRepository using MongoDB
type MongoAssociationRepository struct {
	collection *mongo.Collection
}

// NewMongoAssociationRepository creates a new MongoDB association repository
func NewMongoAssociationRepository(db *mongo.Database) *MongoAssociationRepository {
	return &MongoAssociationRepository{
		collection: db.Collection("organization_integrations"),
	}
}

// EnsureIndexes creates the unique (organizationId, integrationId) index,
// the sole arbiter of the get-or-create race.
func (r *MongoAssociationRepository) EnsureIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "organizationId", Value: 1}, {Key: "integrationId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("failed to create association index: %w", err)
	}
	return nil
}

// Create inserts a new association
func (r *MongoAssociationRepository) Create(ctx context.Context, assoc *domain.OrganizationIntegration) error {
	doc := entity.MongoAssociationDocFromDomain(assoc)
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("association (%s, %s): %w", assoc.OrganizationID, assoc.IntegrationID, ports.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create association: %w", err)
	}

	return nil
}

// GetByPair retrieves the association for an (organization, integration) pair
func (r *MongoAssociationRepository) GetByPair(ctx context.Context, organizationID, integrationID string) (*domain.OrganizationIntegration, error) {
	var doc entity.MongoAssociationDoc
	filter := bson.M{
		"organizationId": organizationID,
		"integrationId":  integrationID,
	}

	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get association: %w", err)
	}

	return doc.ToDomain(), nil
}

// UpdateDefaultIdentity sets only the default-identity field
func (r *MongoAssociationRepository) UpdateDefaultIdentity(ctx context.Context, id, defaultIdentityID string) error {
	filter := bson.M{"_id": id}
	update := bson.M{"$set": bson.M{
		"defaultIdentityId": defaultIdentityID,
		"updatedAt":         time.Now(),
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update default identity: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("association not found")
	}

	return nil
}

var _ ports.IntegrationRepository = (*MongoIntegrationRepository)(nil)
var _ ports.AssociationRepository = (*MongoAssociationRepository)(nil)
