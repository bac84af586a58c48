// Package providers holds the static capability table for third-party
// providers and for the condition/filter/action nodes rules may reference.
// String identifiers are resolved here once, at the deserialization boundary;
// everything behind the lookup is a concrete typed node.
package providers

import "relay-core-integrations-layer/internal/domain"

// Feature is a capability flag carried by a provider.
type Feature string

const (
	FeatureAlertRule  Feature = "alert-rule"
	FeatureChatNotify Feature = "chat-notify"
	FeatureCodeOwners Feature = "code-owners"
	FeatureIssueSync  Feature = "issue-sync"
)

// Provider describes one supported third-party provider.
type Provider struct {
	Key         string
	DisplayName string
	Features    []Feature
}

// HasFeature reports whether the provider carries the given feature.
func (p Provider) HasFeature(f Feature) bool {
	for _, have := range p.Features {
		if have == f {
			return true
		}
	}
	return false
}

// Node is one registered rule node kind: a condition, filter, or action.
type Node interface {
	ID() string
	Kind() domain.NodeKind
}

// OperatorConstrained is implemented by filter nodes that restrict the match
// operator to an allow-list.
type OperatorConstrained interface {
	AllowedOperators() []string
}

// AsyncAction is implemented by action nodes whose settings need
// provider-side resolution before the rule can be persisted.
type AsyncAction interface {
	RequiresResolution(action domain.RuleAction) bool
}

// ActionKind marks action nodes; they share the node table with conditions
// and filters but are stored separately on the rule.
const ActionKind domain.NodeKind = "action"

type firstSeenCondition struct{}

func (firstSeenCondition) ID() string            { return "conditions.first-seen" }
func (firstSeenCondition) Kind() domain.NodeKind { return domain.KindCondition }

type regressionCondition struct{}

func (regressionCondition) ID() string            { return "conditions.regression" }
func (regressionCondition) Kind() domain.NodeKind { return domain.KindCondition }

type eventFrequencyCondition struct{}

func (eventFrequencyCondition) ID() string            { return "conditions.event-frequency" }
func (eventFrequencyCondition) Kind() domain.NodeKind { return domain.KindCondition }

type taggedEventFilter struct{}

func (taggedEventFilter) ID() string            { return "filters.tagged-event" }
func (taggedEventFilter) Kind() domain.NodeKind { return domain.KindFilter }
func (taggedEventFilter) AllowedOperators() []string {
	return []string{"is", "is-not", "contains", "does-not-contain", "starts-with", "ends-with"}
}

type issueOccurrencesFilter struct{}

func (issueOccurrencesFilter) ID() string            { return "filters.issue-occurrences" }
func (issueOccurrencesFilter) Kind() domain.NodeKind { return domain.KindFilter }

type assignedToFilter struct{}

func (assignedToFilter) ID() string            { return "filters.assigned-to" }
func (assignedToFilter) Kind() domain.NodeKind { return domain.KindFilter }

type notifyEventAction struct{}

func (notifyEventAction) ID() string            { return "actions.notify-event" }
func (notifyEventAction) Kind() domain.NodeKind { return ActionKind }

type slackNotifyAction struct{}

func (slackNotifyAction) ID() string            { return "actions.slack-notify" }
func (slackNotifyAction) Kind() domain.NodeKind { return ActionKind }

// RequiresResolution is true until the caller supplies the provider-side
// channel ID for the human-entered channel name.
func (slackNotifyAction) RequiresResolution(action domain.RuleAction) bool {
	return action.Channel != "" && action.ChannelID == ""
}

type createTicketAction struct{}

func (createTicketAction) ID() string            { return "actions.create-ticket" }
func (createTicketAction) Kind() domain.NodeKind { return ActionKind }

// Registry is the static, read-only capability table.
type Registry struct {
	providers map[string]Provider
	nodes     map[string]Node
}

// NewRegistry builds the registry with every supported provider and node.
func NewRegistry() *Registry {
	r := &Registry{
		providers: make(map[string]Provider),
		nodes:     make(map[string]Node),
	}

	for _, p := range []Provider{
		{Key: "github", DisplayName: "GitHub", Features: []Feature{FeatureCodeOwners, FeatureIssueSync}},
		{Key: "gitlab", DisplayName: "GitLab", Features: []Feature{FeatureCodeOwners, FeatureIssueSync}},
		{Key: "slack", DisplayName: "Slack", Features: []Feature{FeatureAlertRule, FeatureChatNotify}},
	} {
		r.providers[p.Key] = p
	}

	for _, n := range []Node{
		firstSeenCondition{},
		regressionCondition{},
		eventFrequencyCondition{},
		taggedEventFilter{},
		issueOccurrencesFilter{},
		assignedToFilter{},
		notifyEventAction{},
		slackNotifyAction{},
		createTicketAction{},
	} {
		r.nodes[n.ID()] = n
	}

	return r
}

// Get returns the provider for a key.
func (r *Registry) Get(key string) (Provider, bool) {
	p, ok := r.providers[key]
	return p, ok
}

// Lookup resolves a node identifier to its registered node.
func (r *Registry) Lookup(id string) (Node, bool) {
	n, ok := r.nodes[id]
	return n, ok
}

// IsAsyncAction reports whether the action needs provider-side resolution
// before persistence.
func (r *Registry) IsAsyncAction(action domain.RuleAction) bool {
	n, ok := r.nodes[action.ID]
	if !ok {
		return false
	}
	async, ok := n.(AsyncAction)
	return ok && async.RequiresResolution(action)
}

// AllowedFilterOperators returns the operator allow-list for a filter node,
// or nil when the node places no constraint on operators.
func (r *Registry) AllowedFilterOperators(id string) []string {
	n, ok := r.nodes[id]
	if !ok {
		return nil
	}
	if constrained, ok := n.(OperatorConstrained); ok {
		return constrained.AllowedOperators()
	}
	return nil
}
