package application

import (
	"context"
	"errors"
	"testing"

	"relay-core-integrations-layer/internal/domain"
	"relay-core-integrations-layer/internal/infrastructure/metrics"
	"relay-core-integrations-layer/internal/providers"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func newRuleService(t *testing.T) (*RuleService, *fakeRuleRepo, *fakeQueue, *Dispatcher) {
	t.Helper()
	ruleRepo := newFakeRuleRepo()
	q := newFakeQueue()
	m := metrics.New()
	dispatcher := NewDispatcher(newFakeDispatchStore(), q, false, m, zerolog.Nop())
	service := NewRuleService(ruleRepo, providers.NewRegistry(), dispatcher, m, zerolog.Nop())
	return service, ruleRepo, q, dispatcher
}

func validInput() RuleInput {
	return RuleInput{
		Name:        "hello world",
		OwnerID:     "user:1",
		ActionMatch: domain.MatchAny,
		Conditions:  []RuleNodeInput{{ID: "conditions.first-seen"}},
		Actions:     []RuleActionInput{{ID: "actions.notify-event"}},
		Frequency:   30,
	}
}

func fieldErrors(t *testing.T, err error) map[string][]string {
	t.Helper()
	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs.Fields()
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return domain.ValidationErrors{verr}.Fields()
	}
	t.Fatalf("expected validation error, got %v", err)
	return nil
}

func TestCreateRuleSimple(t *testing.T) {
	service, ruleRepo, _, _ := newRuleService(t)
	ctx := domain.WithActorID(context.Background(), "user-1")

	rule, err := service.CreateRule(ctx, "proj-1", validInput())
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if rule.ID == "" {
		t.Fatal("expected rule ID")
	}
	if rule.Label != "hello world" || rule.OwnerID != "user:1" {
		t.Fatalf("unexpected rule %+v", rule)
	}
	if rule.Status != domain.RuleActive {
		t.Fatalf("expected active rule, got %s", rule.Status)
	}
	if rule.Frequency != 30 {
		t.Fatalf("expected frequency 30, got %d", rule.Frequency)
	}
	if rule.CreatedByID != "user-1" {
		t.Fatalf("expected creator from context, got %q", rule.CreatedByID)
	}

	persisted, err := ruleRepo.GetByID(ctx, rule.ID)
	if err != nil || persisted == nil {
		t.Fatalf("expected persisted rule, got %v, %v", persisted, err)
	}
	if got := ruleRepo.activitiesFor(rule.ID, domain.ActivityCreated); got != 1 {
		t.Fatalf("expected exactly one created activity, got %d", got)
	}
}

func TestCreateRuleMissingName(t *testing.T) {
	service, _, _, _ := newRuleService(t)

	input := validInput()
	input.Name = ""
	_, err := service.CreateRule(context.Background(), "proj-1", input)
	fields := fieldErrors(t, err)
	if _, ok := fields["name"]; !ok {
		t.Fatalf("expected name field error, got %v", fields)
	}
}

func TestCreateRuleFiltersRequireFilterMatch(t *testing.T) {
	service, ruleRepo, _, _ := newRuleService(t)

	input := validInput()
	input.Filters = []RuleNodeInput{{ID: "filters.issue-occurrences", Value: "10"}}
	input.FilterMatch = ""

	_, err := service.CreateRule(context.Background(), "proj-1", input)
	fields := fieldErrors(t, err)
	want := map[string][]string{
		"filterMatch": {"Must select a filter match (all, any, none) if filters are supplied."},
	}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Fatalf("unexpected field errors (-want +got):\n%s", diff)
	}
	if len(ruleRepo.rules) != 0 {
		t.Fatal("invalid rule must not persist")
	}
}

func TestCreateRuleFilterOperatorAllowList(t *testing.T) {
	service, _, _, _ := newRuleService(t)
	ctx := context.Background()

	input := validInput()
	input.FilterMatch = domain.MatchAny
	input.Filters = []RuleNodeInput{{ID: "filters.tagged-event", Key: "foo", Match: "is"}}
	rule, err := service.CreateRule(ctx, "proj-1", input)
	if err != nil {
		t.Fatalf("CreateRule with operator 'is': %v", err)
	}

	wantNodes := []domain.RuleNode{
		{ID: "conditions.first-seen", Kind: domain.KindCondition},
		{ID: "filters.tagged-event", Kind: domain.KindFilter, Key: "foo", Match: "is"},
	}
	if diff := cmp.Diff(wantNodes, rule.Nodes); diff != "" {
		t.Fatalf("unexpected node order (-want +got):\n%s", diff)
	}

	input.Filters = []RuleNodeInput{{ID: "filters.tagged-event", Key: "foo", Match: "eq"}}
	_, err = service.CreateRule(ctx, "proj-1", input)
	fields := fieldErrors(t, err)
	if _, ok := fields["filters"]; !ok {
		t.Fatalf("expected filters field error for operator 'eq', got %v", fields)
	}
}

func TestCreateRuleUnknownNodeIDs(t *testing.T) {
	service, _, _, _ := newRuleService(t)
	ctx := context.Background()

	input := validInput()
	input.Conditions = []RuleNodeInput{{ID: "conditions.does-not-exist"}}
	_, err := service.CreateRule(ctx, "proj-1", input)
	if _, ok := fieldErrors(t, err)["conditions"]; !ok {
		t.Fatal("expected conditions field error")
	}

	input = validInput()
	input.Actions = []RuleActionInput{{ID: "actions.does-not-exist"}}
	_, err = service.CreateRule(ctx, "proj-1", input)
	if _, ok := fieldErrors(t, err)["actions"]; !ok {
		t.Fatal("expected actions field error")
	}

	// A condition id submitted as a filter is rejected too.
	input = validInput()
	input.FilterMatch = domain.MatchAny
	input.Filters = []RuleNodeInput{{ID: "conditions.first-seen"}}
	_, err = service.CreateRule(ctx, "proj-1", input)
	if _, ok := fieldErrors(t, err)["filters"]; !ok {
		t.Fatal("expected filters field error")
	}
}

func TestCreateRuleAtomicWithActivity(t *testing.T) {
	service, ruleRepo, _, _ := newRuleService(t)
	ruleRepo.failCreate = true

	_, err := service.CreateRule(context.Background(), "proj-1", validInput())
	if err == nil {
		t.Fatal("expected error from aborted transaction")
	}
	if len(ruleRepo.rules) != 0 || len(ruleRepo.activities) != 0 {
		t.Fatal("aborted transaction must leave neither rule nor activity")
	}
}

func TestCreateRuleFrequencyClamped(t *testing.T) {
	service, _, _, _ := newRuleService(t)
	ctx := context.Background()

	input := validInput()
	input.Frequency = 0
	rule, err := service.CreateRule(ctx, "proj-1", input)
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if rule.Frequency != 30 {
		t.Fatalf("expected default frequency 30, got %d", rule.Frequency)
	}

	input.Frequency = 1
	rule, err = service.CreateRule(ctx, "proj-1", input)
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if rule.Frequency != 5 {
		t.Fatalf("expected clamped frequency 5, got %d", rule.Frequency)
	}
}

func TestCreateRuleAsyncActionPendsAndResolves(t *testing.T) {
	service, ruleRepo, q, dispatcher := newRuleService(t)
	ctx := context.Background()

	input := validInput()
	input.Actions = []RuleActionInput{{
		ID:            "actions.slack-notify",
		IntegrationID: "int-1",
		Channel:       "#team-team-team",
	}}

	rule, err := service.CreateRule(ctx, "proj-1", input)
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if rule.Status != domain.RulePending {
		t.Fatalf("expected pending rule, got %s", rule.Status)
	}
	if rule.PendingToken == "" {
		t.Fatal("expected correlation token on pending rule")
	}
	if len(ruleRepo.rules) != 0 {
		t.Fatal("pending rule must not be persisted before resolution")
	}
	if q.count() != 1 {
		t.Fatalf("expected one enqueued unit, got %d", q.count())
	}

	if err := dispatcher.Resolve(ctx, rule.PendingToken, DispatchResult{ChannelID: "CSVK0921"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	rules, err := ruleRepo.ListByProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("ListByProject: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected one persisted rule after resolution, got %d", len(rules))
	}
	if got := rules[0].Actions[0].ChannelID; got != "CSVK0921" {
		t.Fatalf("expected resolved channel ID, got %q", got)
	}
	if got := ruleRepo.activitiesFor(rules[0].ID, domain.ActivityCreated); got != 1 {
		t.Fatalf("expected exactly one created activity, got %d", got)
	}
}

func TestCreateRuleAsyncSkippedWhenChannelIDSupplied(t *testing.T) {
	service, ruleRepo, q, _ := newRuleService(t)

	input := validInput()
	input.Actions = []RuleActionInput{{
		ID:            "actions.slack-notify",
		IntegrationID: "int-1",
		Channel:       "#team-team-team",
		ChannelID:     "CSVK0921",
	}}

	rule, err := service.CreateRule(context.Background(), "proj-1", input)
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if rule.Status != domain.RuleActive {
		t.Fatalf("expected active rule, got %s", rule.Status)
	}
	if len(ruleRepo.rules) != 1 {
		t.Fatal("expected rule persisted synchronously")
	}
	if q.count() != 0 {
		t.Fatal("no dispatch expected when channel ID is supplied")
	}
}

func TestCreateRuleAsyncFailureDropsPendingRule(t *testing.T) {
	service, ruleRepo, _, dispatcher := newRuleService(t)
	ctx := context.Background()

	input := validInput()
	input.Actions = []RuleActionInput{{ID: "actions.slack-notify", Channel: "#missing"}}

	rule, err := service.CreateRule(ctx, "proj-1", input)
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	if err := dispatcher.Resolve(ctx, rule.PendingToken, DispatchResult{Err: "channel not found"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ruleRepo.rules) != 0 {
		t.Fatal("failed resolution must not persist the rule")
	}
}

func TestUpdateRuleWritesUpdatedActivity(t *testing.T) {
	service, ruleRepo, _, _ := newRuleService(t)
	ctx := context.Background()

	rule, err := service.CreateRule(ctx, "proj-1", validInput())
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	input := validInput()
	input.Name = "renamed"
	updated, err := service.UpdateRule(ctx, "proj-1", rule.ID, input)
	if err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	if updated.ID != rule.ID || updated.Label != "renamed" {
		t.Fatalf("unexpected updated rule %+v", updated)
	}
	if got := ruleRepo.activitiesFor(rule.ID, domain.ActivityUpdated); got != 1 {
		t.Fatalf("expected exactly one updated activity, got %d", got)
	}
}

func TestDeleteRuleWritesDeletedActivity(t *testing.T) {
	service, ruleRepo, _, _ := newRuleService(t)
	ctx := context.Background()

	rule, err := service.CreateRule(ctx, "proj-1", validInput())
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	if err := service.DeleteRule(ctx, "proj-1", rule.ID); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if len(ruleRepo.rules) != 0 {
		t.Fatal("expected rule removed")
	}
	if got := ruleRepo.activitiesFor(rule.ID, domain.ActivityDeleted); got != 1 {
		t.Fatalf("expected exactly one deleted activity, got %d", got)
	}
}
