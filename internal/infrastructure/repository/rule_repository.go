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

// MongoRuleRepository implements RuleRepository using MongoDB. Every rule
// mutation and its audit activity run inside one multi-document transaction:
// a crash between the two writes leaves neither.
type MongoRuleRepository struct {
	client     *mongo.Client
	rules      *mongo.Collection
	activities *mongo.Collection
}

// NewMongoRuleRepository creates a new MongoDB rule repository
func NewMongoRuleRepository(client *mongo.Client, db *mongo.Database) *MongoRuleRepository {
	return &MongoRuleRepository{
		client:     client,
		rules:      db.Collection("rules"),
		activities: db.Collection("rule_activities"),
	}
}

// EnsureIndexes creates the query indexes for rules and activities.
func (r *MongoRuleRepository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.rules.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "projectId", Value: 1}},
	}); err != nil {
		return fmt.Errorf("failed to create rule index: %w", err)
	}
	if _, err := r.activities.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ruleId", Value: 1}, {Key: "createdAt", Value: 1}},
	}); err != nil {
		return fmt.Errorf("failed to create rule activity index: %w", err)
	}
	return nil
}

func (r *MongoRuleRepository) inTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// CreateWithActivity inserts the rule and its created-activity atomically
func (r *MongoRuleRepository) CreateWithActivity(ctx context.Context, rule *domain.Rule, activity *domain.RuleActivity) error {
	ruleDoc := entity.MongoRuleDocFromDomain(rule)
	ruleDoc.UpdatedAt = time.Now()
	if ruleDoc.CreatedAt.IsZero() {
		ruleDoc.CreatedAt = time.Now()
	}
	activityDoc := entity.MongoRuleActivityDocFromDomain(activity)
	if activityDoc.CreatedAt.IsZero() {
		activityDoc.CreatedAt = time.Now()
	}

	err := r.inTransaction(ctx, func(sc mongo.SessionContext) error {
		if _, err := r.rules.InsertOne(sc, ruleDoc); err != nil {
			return err
		}
		if _, err := r.activities.InsertOne(sc, activityDoc); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create rule with activity: %w", err)
	}
	return nil
}

// UpdateWithActivity replaces the rule and inserts its updated-activity atomically
func (r *MongoRuleRepository) UpdateWithActivity(ctx context.Context, rule *domain.Rule, activity *domain.RuleActivity) error {
	ruleDoc := entity.MongoRuleDocFromDomain(rule)
	ruleDoc.UpdatedAt = time.Now()
	activityDoc := entity.MongoRuleActivityDocFromDomain(activity)
	if activityDoc.CreatedAt.IsZero() {
		activityDoc.CreatedAt = time.Now()
	}

	err := r.inTransaction(ctx, func(sc mongo.SessionContext) error {
		result, err := r.rules.ReplaceOne(sc, bson.M{"_id": rule.ID}, ruleDoc)
		if err != nil {
			return err
		}
		if result.MatchedCount == 0 {
			return fmt.Errorf("rule not found")
		}
		if _, err := r.activities.InsertOne(sc, activityDoc); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update rule with activity: %w", err)
	}
	return nil
}

// DeleteWithActivity removes the rule and inserts its deleted-activity
// atomically. The activity row survives the rule: the audit trail is
// append-only.
func (r *MongoRuleRepository) DeleteWithActivity(ctx context.Context, ruleID string, activity *domain.RuleActivity) error {
	activityDoc := entity.MongoRuleActivityDocFromDomain(activity)
	if activityDoc.CreatedAt.IsZero() {
		activityDoc.CreatedAt = time.Now()
	}

	err := r.inTransaction(ctx, func(sc mongo.SessionContext) error {
		result, err := r.rules.DeleteOne(sc, bson.M{"_id": ruleID})
		if err != nil {
			return err
		}
		if result.DeletedCount == 0 {
			return fmt.Errorf("rule not found")
		}
		if _, err := r.activities.InsertOne(sc, activityDoc); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete rule with activity: %w", err)
	}
	return nil
}

// GetByID retrieves a rule by ID
func (r *MongoRuleRepository) GetByID(ctx context.Context, id string) (*domain.Rule, error) {
	var doc entity.MongoRuleDoc

	err := r.rules.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return doc.ToDomain(), nil
}

// ListByProject retrieves all rules for a project
func (r *MongoRuleRepository) ListByProject(ctx context.Context, projectID string) ([]*domain.Rule, error) {
	cursor, err := r.rules.Find(ctx, bson.M{"projectId": projectID})
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []*domain.Rule
	for cursor.Next(ctx) {
		var doc entity.MongoRuleDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode rule: %w", err)
		}
		rules = append(rules, doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return rules, nil
}

// ListActivities retrieves the audit trail for a rule, oldest first
func (r *MongoRuleRepository) ListActivities(ctx context.Context, ruleID string) ([]*domain.RuleActivity, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.activities.Find(ctx, bson.M{"ruleId": ruleID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule activities: %w", err)
	}
	defer cursor.Close(ctx)

	var activities []*domain.RuleActivity
	for cursor.Next(ctx) {
		var doc entity.MongoRuleActivityDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode rule activity: %w", err)
		}
		activities = append(activities, doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return activities, nil
}

var _ ports.RuleRepository = (*MongoRuleRepository)(nil)
