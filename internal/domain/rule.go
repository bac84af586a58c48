package domain

import "time"

// MatchPolicy controls how a rule combines its conditions or filters.
type MatchPolicy string

const (
	MatchAll  MatchPolicy = "all"
	MatchAny  MatchPolicy = "any"
	MatchNone MatchPolicy = "none"
)

// ValidMatchPolicy reports whether p is one of all, any, none.
func ValidMatchPolicy(p MatchPolicy) bool {
	return p == MatchAll || p == MatchAny || p == MatchNone
}

// RuleStatus tracks whether a rule is fully persisted or still waiting on
// provider-side resolution of one of its actions.
type RuleStatus string

const (
	RuleActive  RuleStatus = "active"
	RulePending RuleStatus = "pending"
)

// NodeKind tags a rule node with what it was submitted as. Conditions and
// filters are stored in one ordered list, filters after conditions.
type NodeKind string

const (
	KindCondition NodeKind = "condition"
	KindFilter    NodeKind = "filter"
)

// RuleNode is one condition or filter entry of a rule. ID must resolve in
// the provider registry; the remaining fields are node-specific settings.
type RuleNode struct {
	ID       string         `json:"id" bson:"id"`
	Kind     NodeKind       `json:"kind" bson:"kind"`
	Match    string         `json:"match,omitempty" bson:"match,omitempty"`
	Key      string         `json:"key,omitempty" bson:"key,omitempty"`
	Value    string         `json:"value,omitempty" bson:"value,omitempty"`
	Settings map[string]any `json:"settings,omitempty" bson:"settings,omitempty"`
}

// RuleAction is one action entry of a rule.
type RuleAction struct {
	ID            string         `json:"id" bson:"id"`
	Name          string         `json:"name,omitempty" bson:"name,omitempty"`
	IntegrationID string         `json:"integration_id,omitempty" bson:"integration_id,omitempty"`
	Channel       string         `json:"channel,omitempty" bson:"channel,omitempty"`
	ChannelID     string         `json:"channel_id,omitempty" bson:"channel_id,omitempty"`
	Settings      map[string]any `json:"settings,omitempty" bson:"settings,omitempty"`
}

// Rule is a project-scoped automation definition: when to fire (nodes) and
// what to do (actions).
type Rule struct {
	ID          string       `json:"id" bson:"_id"`
	ProjectID   string       `json:"project_id" bson:"project_id"`
	Label       string       `json:"label" bson:"label"`
	OwnerID     string       `json:"owner_id,omitempty" bson:"owner_id,omitempty"` // user:<id> or team:<id>, optional
	ActionMatch MatchPolicy  `json:"action_match" bson:"action_match"`
	FilterMatch MatchPolicy  `json:"filter_match,omitempty" bson:"filter_match,omitempty"`
	Nodes       []RuleNode   `json:"nodes" bson:"nodes"`
	Actions     []RuleAction `json:"actions" bson:"actions"`
	Frequency   int          `json:"frequency" bson:"frequency"` // Minimum minutes between repeated firings
	Status      RuleStatus   `json:"status" bson:"status"`
	// PendingToken is set only on rules returned from the async creation
	// path, before the rule row exists.
	PendingToken string    `json:"pending_token,omitempty" bson:"-"`
	CreatedByID  string    `json:"created_by_id,omitempty" bson:"created_by_id,omitempty"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}

// RuleActivityType tags an audit entry.
type RuleActivityType string

const (
	ActivityCreated RuleActivityType = "created"
	ActivityUpdated RuleActivityType = "updated"
	ActivityDeleted RuleActivityType = "deleted"
)

// RuleActivity is an immutable audit record for one rule mutation. Rows are
// append-only; they are never updated or deleted.
type RuleActivity struct {
	ID        string           `json:"id" bson:"_id"`
	RuleID    string           `json:"rule_id" bson:"rule_id"`
	Type      RuleActivityType `json:"type" bson:"type"`
	ActorID   string           `json:"actor_id,omitempty" bson:"actor_id,omitempty"`
	CreatedAt time.Time        `json:"created_at" bson:"created_at"`
}
