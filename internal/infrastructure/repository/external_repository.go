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

// MongoExternalMappingRepository implements ExternalMappingRepository using MongoDB
type MongoExternalMappingRepository struct {
	teams *mongo.Collection
	users *mongo.Collection
}

// NewMongoExternalMappingRepository creates a new MongoDB external mapping repository
func NewMongoExternalMappingRepository(db *mongo.Database) *MongoExternalMappingRepository {
	return &MongoExternalMappingRepository{
		teams: db.Collection("external_teams"),
		users: db.Collection("external_users"),
	}
}

// EnsureIndexes creates the unique triple indexes for both collections.
func (r *MongoExternalMappingRepository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.teams.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "teamId", Value: 1}, {Key: "provider", Value: 1}, {Key: "externalName", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create external team index: %w", err)
	}
	if _, err := r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "memberId", Value: 1}, {Key: "provider", Value: 1}, {Key: "externalName", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create external user index: %w", err)
	}
	return nil
}

// CreateTeam inserts an external team mapping
func (r *MongoExternalMappingRepository) CreateTeam(ctx context.Context, mapping *domain.ExternalTeam) error {
	doc := entity.MongoExternalTeamDocFromDomain(mapping)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	_, err := r.teams.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("external team (%s, %s, %s): %w", mapping.TeamID, mapping.Provider, mapping.ExternalName, ports.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create external team mapping: %w", err)
	}

	return nil
}

// GetTeam retrieves an external team mapping by its triple
func (r *MongoExternalMappingRepository) GetTeam(ctx context.Context, teamID, provider, externalName string) (*domain.ExternalTeam, error) {
	var doc entity.MongoExternalTeamDoc
	filter := bson.M{
		"teamId":       teamID,
		"provider":     provider,
		"externalName": externalName,
	}

	err := r.teams.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get external team mapping: %w", err)
	}

	return doc.ToDomain(), nil
}

// ListTeams retrieves all mappings for a team
func (r *MongoExternalMappingRepository) ListTeams(ctx context.Context, teamID string) ([]*domain.ExternalTeam, error) {
	cursor, err := r.teams.Find(ctx, bson.M{"teamId": teamID})
	if err != nil {
		return nil, fmt.Errorf("failed to list external team mappings: %w", err)
	}
	defer cursor.Close(ctx)

	var mappings []*domain.ExternalTeam
	for cursor.Next(ctx) {
		var doc entity.MongoExternalTeamDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode external team mapping: %w", err)
		}
		mappings = append(mappings, doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return mappings, nil
}

// DeleteTeam removes an external team mapping by ID
func (r *MongoExternalMappingRepository) DeleteTeam(ctx context.Context, id string) error {
	result, err := r.teams.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete external team mapping: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("external team mapping not found")
	}
	return nil
}

// CreateUser inserts an external user mapping
func (r *MongoExternalMappingRepository) CreateUser(ctx context.Context, mapping *domain.ExternalUser) error {
	doc := entity.MongoExternalUserDocFromDomain(mapping)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	_, err := r.users.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("external user (%s, %s, %s): %w", mapping.MemberID, mapping.Provider, mapping.ExternalName, ports.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create external user mapping: %w", err)
	}

	return nil
}

// GetUser retrieves an external user mapping by its triple
func (r *MongoExternalMappingRepository) GetUser(ctx context.Context, memberID, provider, externalName string) (*domain.ExternalUser, error) {
	var doc entity.MongoExternalUserDoc
	filter := bson.M{
		"memberId":     memberID,
		"provider":     provider,
		"externalName": externalName,
	}

	err := r.users.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get external user mapping: %w", err)
	}

	return doc.ToDomain(), nil
}

// ListUsers retrieves all mappings for a member
func (r *MongoExternalMappingRepository) ListUsers(ctx context.Context, memberID string) ([]*domain.ExternalUser, error) {
	cursor, err := r.users.Find(ctx, bson.M{"memberId": memberID})
	if err != nil {
		return nil, fmt.Errorf("failed to list external user mappings: %w", err)
	}
	defer cursor.Close(ctx)

	var mappings []*domain.ExternalUser
	for cursor.Next(ctx) {
		var doc entity.MongoExternalUserDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode external user mapping: %w", err)
		}
		mappings = append(mappings, doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return mappings, nil
}

// DeleteUser removes an external user mapping by ID
func (r *MongoExternalMappingRepository) DeleteUser(ctx context.Context, id string) error {
	result, err := r.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete external user mapping: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("external user mapping not found")
	}
	return nil
}

var _ ports.ExternalMappingRepository = (*MongoExternalMappingRepository)(nil)
