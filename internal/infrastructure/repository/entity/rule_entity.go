package entity

import (
	"time"

	"relay-core-integrations-layer/internal/domain"
)

// MongoRuleNodeDoc is one condition or filter entry of a stored rule.
type MongoRuleNodeDoc struct {
	ID       string         `bson:"id"`
	Kind     string         `bson:"kind"`
	Match    string         `bson:"match,omitempty"`
	Key      string         `bson:"key,omitempty"`
	Value    string         `bson:"value,omitempty"`
	Settings map[string]any `bson:"settings,omitempty"`
}

// MongoRuleActionDoc is one action entry of a stored rule.
type MongoRuleActionDoc struct {
	ID            string         `bson:"id"`
	Name          string         `bson:"name,omitempty"`
	IntegrationID string         `bson:"integrationId,omitempty"`
	Channel       string         `bson:"channel,omitempty"`
	ChannelID     string         `bson:"channelId,omitempty"`
	Settings      map[string]any `bson:"settings,omitempty"`
}

// MongoRuleDoc represents a rule in MongoDB
type MongoRuleDoc struct {
	ID          string               `bson:"_id"`
	ProjectID   string               `bson:"projectId"`
	Label       string               `bson:"label"`
	OwnerID     string               `bson:"ownerId,omitempty"`
	ActionMatch string               `bson:"actionMatch"`
	FilterMatch string               `bson:"filterMatch,omitempty"`
	Nodes       []MongoRuleNodeDoc   `bson:"nodes"`
	Actions     []MongoRuleActionDoc `bson:"actions"`
	Frequency   int                  `bson:"frequency"`
	Status      string               `bson:"status"`
	CreatedByID string               `bson:"createdById,omitempty"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoRuleDoc) ToDomain() *domain.Rule {
	nodes := make([]domain.RuleNode, len(d.Nodes))
	for i, n := range d.Nodes {
		nodes[i] = domain.RuleNode{
			ID: n.ID, Kind: domain.NodeKind(n.Kind),
			Match: n.Match, Key: n.Key, Value: n.Value, Settings: n.Settings,
		}
	}
	actions := make([]domain.RuleAction, len(d.Actions))
	for i, a := range d.Actions {
		actions[i] = domain.RuleAction{
			ID: a.ID, Name: a.Name, IntegrationID: a.IntegrationID,
			Channel: a.Channel, ChannelID: a.ChannelID, Settings: a.Settings,
		}
	}
	return &domain.Rule{
		ID:          d.ID,
		ProjectID:   d.ProjectID,
		Label:       d.Label,
		OwnerID:     d.OwnerID,
		ActionMatch: domain.MatchPolicy(d.ActionMatch),
		FilterMatch: domain.MatchPolicy(d.FilterMatch),
		Nodes:       nodes,
		Actions:     actions,
		Frequency:   d.Frequency,
		Status:      domain.RuleStatus(d.Status),
		CreatedByID: d.CreatedByID,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// MongoRuleDocFromDomain converts a domain entity to a MongoDB document
func MongoRuleDocFromDomain(rule *domain.Rule) *MongoRuleDoc {
	nodes := make([]MongoRuleNodeDoc, len(rule.Nodes))
	for i, n := range rule.Nodes {
		nodes[i] = MongoRuleNodeDoc{
			ID: n.ID, Kind: string(n.Kind),
			Match: n.Match, Key: n.Key, Value: n.Value, Settings: n.Settings,
		}
	}
	actions := make([]MongoRuleActionDoc, len(rule.Actions))
	for i, a := range rule.Actions {
		actions[i] = MongoRuleActionDoc{
			ID: a.ID, Name: a.Name, IntegrationID: a.IntegrationID,
			Channel: a.Channel, ChannelID: a.ChannelID, Settings: a.Settings,
		}
	}
	return &MongoRuleDoc{
		ID:          rule.ID,
		ProjectID:   rule.ProjectID,
		Label:       rule.Label,
		OwnerID:     rule.OwnerID,
		ActionMatch: string(rule.ActionMatch),
		FilterMatch: string(rule.FilterMatch),
		Nodes:       nodes,
		Actions:     actions,
		Frequency:   rule.Frequency,
		Status:      string(rule.Status),
		CreatedByID: rule.CreatedByID,
		CreatedAt:   rule.CreatedAt,
		UpdatedAt:   rule.UpdatedAt,
	}
}

// MongoRuleActivityDoc represents an immutable rule audit entry in MongoDB.
// Activity rows are append-only and never updated or deleted.
type MongoRuleActivityDoc struct {
	ID        string    `bson:"_id"`
	RuleID    string    `bson:"ruleId"`
	Type      string    `bson:"type"`
	ActorID   string    `bson:"actorId,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoRuleActivityDoc) ToDomain() *domain.RuleActivity {
	return &domain.RuleActivity{
		ID:        d.ID,
		RuleID:    d.RuleID,
		Type:      domain.RuleActivityType(d.Type),
		ActorID:   d.ActorID,
		CreatedAt: d.CreatedAt,
	}
}

// MongoRuleActivityDocFromDomain converts a domain entity to a MongoDB document
func MongoRuleActivityDocFromDomain(activity *domain.RuleActivity) *MongoRuleActivityDoc {
	return &MongoRuleActivityDoc{
		ID:        activity.ID,
		RuleID:    activity.RuleID,
		Type:      string(activity.Type),
		ActorID:   activity.ActorID,
		CreatedAt: activity.CreatedAt,
	}
}
