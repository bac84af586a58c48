package providers

import (
	"testing"

	"relay-core-integrations-layer/internal/domain"

	"github.com/google/go-cmp/cmp"
)

func TestGetKnownProvider(t *testing.T) {
	registry := NewRegistry()

	p, ok := registry.Get("slack")
	if !ok {
		t.Fatal("expected slack to be registered")
	}
	if p.DisplayName != "Slack" {
		t.Fatalf("expected display name Slack, got %q", p.DisplayName)
	}
	if !p.HasFeature(FeatureChatNotify) {
		t.Fatal("expected slack to carry chat-notify")
	}
	if p.HasFeature(FeatureCodeOwners) {
		t.Fatal("slack must not carry code-owners")
	}

	if _, ok := registry.Get("pagerduty"); ok {
		t.Fatal("expected unknown provider to miss")
	}
}

func TestLookupResolvesNodeKinds(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		id   string
		kind domain.NodeKind
	}{
		{"conditions.first-seen", domain.KindCondition},
		{"conditions.regression", domain.KindCondition},
		{"conditions.event-frequency", domain.KindCondition},
		{"filters.tagged-event", domain.KindFilter},
		{"filters.issue-occurrences", domain.KindFilter},
		{"filters.assigned-to", domain.KindFilter},
		{"actions.notify-event", ActionKind},
		{"actions.slack-notify", ActionKind},
		{"actions.create-ticket", ActionKind},
	}
	for _, tt := range tests {
		n, ok := registry.Lookup(tt.id)
		if !ok {
			t.Fatalf("expected %s to be registered", tt.id)
		}
		if n.Kind() != tt.kind {
			t.Fatalf("expected %s to have kind %s, got %s", tt.id, tt.kind, n.Kind())
		}
	}

	if _, ok := registry.Lookup("conditions.unknown"); ok {
		t.Fatal("expected unknown node to miss")
	}
}

func TestAllowedFilterOperators(t *testing.T) {
	registry := NewRegistry()

	want := []string{"is", "is-not", "contains", "does-not-contain", "starts-with", "ends-with"}
	got := registry.AllowedFilterOperators("filters.tagged-event")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("operator allow-list mismatch (-want +got):\n%s", diff)
	}

	if ops := registry.AllowedFilterOperators("filters.assigned-to"); ops != nil {
		t.Fatalf("expected unconstrained filter to return nil, got %v", ops)
	}
	if ops := registry.AllowedFilterOperators("filters.unknown"); ops != nil {
		t.Fatalf("expected unknown node to return nil, got %v", ops)
	}
}

func TestIsAsyncAction(t *testing.T) {
	registry := NewRegistry()

	if !registry.IsAsyncAction(domain.RuleAction{ID: "actions.slack-notify", Channel: "#alerts"}) {
		t.Fatal("slack-notify with a bare channel name needs resolution")
	}
	if registry.IsAsyncAction(domain.RuleAction{ID: "actions.slack-notify", Channel: "#alerts", ChannelID: "C123"}) {
		t.Fatal("slack-notify with a channel ID is already resolved")
	}
	if registry.IsAsyncAction(domain.RuleAction{ID: "actions.slack-notify"}) {
		t.Fatal("slack-notify without a channel has nothing to resolve")
	}
	if registry.IsAsyncAction(domain.RuleAction{ID: "actions.notify-event", Channel: "#alerts"}) {
		t.Fatal("notify-event never needs resolution")
	}
	if registry.IsAsyncAction(domain.RuleAction{ID: "actions.unknown"}) {
		t.Fatal("unknown actions never need resolution")
	}
}
