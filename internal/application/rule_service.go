package application

import (
	"context"
	"fmt"
	"time"

	"relay-core-integrations-layer/internal/domain"
	"relay-core-integrations-layer/internal/infrastructure/metrics"
	"relay-core-integrations-layer/internal/ports"
	"relay-core-integrations-layer/internal/providers"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultFrequency = 30
	minFrequency     = 5
	maxFrequency     = 43200
)

// RuleService validates and persists project alert rules, writing one audit
// activity per mutation in the same transaction as the rule change. Actions
// that need provider-side resolution are handed to the dispatcher and the
// rule comes back pending instead of blocking the request on the provider.
type RuleService struct {
	ruleRepo   ports.RuleRepository
	registry   *providers.Registry
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewRuleService creates a new rule service
func NewRuleService(
	ruleRepo ports.RuleRepository,
	registry *providers.Registry,
	dispatcher *Dispatcher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *RuleService {
	s := &RuleService{
		ruleRepo:   ruleRepo,
		registry:   registry,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger,
	}
	// Every process registers the same callback, so a resolution arriving on
	// any replica persists the pending rule.
	dispatcher.OnResolved(s.persistResolved)
	return s
}

// RuleNodeInput is one submitted condition or filter.
type RuleNodeInput struct {
	ID       string         `json:"id"`
	Match    string         `json:"match,omitempty"`
	Key      string         `json:"key,omitempty"`
	Value    string         `json:"value,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

// RuleActionInput is one submitted action.
type RuleActionInput struct {
	ID            string         `json:"id"`
	Name          string         `json:"name,omitempty"`
	IntegrationID string         `json:"integrationId,omitempty"`
	Channel       string         `json:"channel,omitempty"`
	ChannelID     string         `json:"channelId,omitempty"`
	Settings      map[string]any `json:"settings,omitempty"`
}

// RuleInput is the full rule submission. It doubles as the dispatcher
// snapshot for the async creation path, so it must marshal cleanly.
type RuleInput struct {
	Name        string             `json:"name"`
	OwnerID     string             `json:"owner,omitempty"`
	ActionMatch domain.MatchPolicy `json:"actionMatch"`
	FilterMatch domain.MatchPolicy `json:"filterMatch,omitempty"`
	Conditions  []RuleNodeInput    `json:"conditions,omitempty"`
	Filters     []RuleNodeInput    `json:"filters,omitempty"`
	Actions     []RuleActionInput  `json:"actions,omitempty"`
	Frequency   int                `json:"frequency,omitempty"`
	ActorID     string             `json:"actorId,omitempty"`
}

func (s *RuleService) validate(input *RuleInput) error {
	var errs domain.ValidationErrors

	if input.Name == "" {
		errs = append(errs, domain.NewValidationError("name", "This field is required."))
	}
	if !domain.ValidMatchPolicy(input.ActionMatch) {
		errs = append(errs, domain.NewValidationError("actionMatch", "Must select an action match (all, any, none)."))
	}
	if len(input.Filters) > 0 && !domain.ValidMatchPolicy(input.FilterMatch) {
		errs = append(errs, domain.NewValidationError("filterMatch", "Must select a filter match (all, any, none) if filters are supplied."))
	}

	for _, c := range input.Conditions {
		node, ok := s.registry.Lookup(c.ID)
		if !ok || node.Kind() != domain.KindCondition {
			errs = append(errs, domain.NewValidationError("conditions", fmt.Sprintf("Unknown condition %q.", c.ID)))
		}
	}
	for _, f := range input.Filters {
		node, ok := s.registry.Lookup(f.ID)
		if !ok || node.Kind() != domain.KindFilter {
			errs = append(errs, domain.NewValidationError("filters", fmt.Sprintf("Unknown filter %q.", f.ID)))
			continue
		}
		if allowed := s.registry.AllowedFilterOperators(f.ID); allowed != nil {
			found := false
			for _, op := range allowed {
				if f.Match == op {
					found = true
					break
				}
			}
			if !found {
				errs = append(errs, domain.NewValidationError("filters", fmt.Sprintf("Invalid match operator %q for %q.", f.Match, f.ID)))
			}
		}
	}
	for _, a := range input.Actions {
		node, ok := s.registry.Lookup(a.ID)
		if !ok || node.Kind() != providers.ActionKind {
			errs = append(errs, domain.NewValidationError("actions", fmt.Sprintf("Unknown action %q.", a.ID)))
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func clampFrequency(frequency int) int {
	if frequency == 0 {
		return defaultFrequency
	}
	if frequency < minFrequency {
		return minFrequency
	}
	if frequency > maxFrequency {
		return maxFrequency
	}
	return frequency
}

// buildRule assembles the persisted form: conditions and filters concatenated
// into one ordered node list, filters after conditions, each tagged with the
// kind it was submitted as.
func buildRule(projectID string, input *RuleInput) *domain.Rule {
	nodes := make([]domain.RuleNode, 0, len(input.Conditions)+len(input.Filters))
	for _, c := range input.Conditions {
		nodes = append(nodes, domain.RuleNode{
			ID: c.ID, Kind: domain.KindCondition,
			Match: c.Match, Key: c.Key, Value: c.Value, Settings: c.Settings,
		})
	}
	for _, f := range input.Filters {
		nodes = append(nodes, domain.RuleNode{
			ID: f.ID, Kind: domain.KindFilter,
			Match: f.Match, Key: f.Key, Value: f.Value, Settings: f.Settings,
		})
	}

	actions := make([]domain.RuleAction, 0, len(input.Actions))
	for _, a := range input.Actions {
		actions = append(actions, domain.RuleAction{
			ID: a.ID, Name: a.Name, IntegrationID: a.IntegrationID,
			Channel: a.Channel, ChannelID: a.ChannelID, Settings: a.Settings,
		})
	}

	return &domain.Rule{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Label:       input.Name,
		OwnerID:     input.OwnerID,
		ActionMatch: input.ActionMatch,
		FilterMatch: input.FilterMatch,
		Nodes:       nodes,
		Actions:     actions,
		Frequency:   clampFrequency(input.Frequency),
		Status:      domain.RuleActive,
		CreatedByID: input.ActorID,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

// needsResolution returns the index of the first action that still needs
// provider-side resolution, or -1.
func (s *RuleService) needsResolution(input *RuleInput) int {
	for i, a := range input.Actions {
		action := domain.RuleAction{ID: a.ID, Channel: a.Channel, ChannelID: a.ChannelID}
		if s.registry.IsAsyncAction(action) {
			return i
		}
	}
	return -1
}

// CreateRule validates and persists a rule, producing exactly one
// created-activity in the same transaction. When an action needs async
// resolution the rule is not persisted yet: the snapshot is scheduled on the
// dispatcher and the returned rule is pending, carrying the correlation
// token. Resolution persists the completed rule through the same
// transactional path.
func (s *RuleService) CreateRule(ctx context.Context, projectID string, input RuleInput) (*domain.Rule, error) {
	if err := s.validate(&input); err != nil {
		return nil, err
	}
	if input.ActorID == "" {
		input.ActorID = domain.GetActorIDFromContext(ctx)
	}

	if s.needsResolution(&input) >= 0 {
		token := uuid.NewString()
		if err := s.dispatcher.Schedule(ctx, token, projectID, input); err != nil {
			return nil, err
		}
		rule := buildRule(projectID, &input)
		rule.Status = domain.RulePending
		rule.PendingToken = token
		s.logger.Info().
			Str("projectId", projectID).
			Str("token", token).
			Str("label", input.Name).
			Msg("Rule creation pending on provider-side resolution")
		return rule, nil
	}

	return s.persist(ctx, projectID, &input)
}

func (s *RuleService) persist(ctx context.Context, projectID string, input *RuleInput) (*domain.Rule, error) {
	rule := buildRule(projectID, input)
	activity := &domain.RuleActivity{
		ID:        uuid.NewString(),
		RuleID:    rule.ID,
		Type:      domain.ActivityCreated,
		ActorID:   input.ActorID,
		CreatedAt: time.Now(),
	}

	if err := s.ruleRepo.CreateWithActivity(ctx, rule, activity); err != nil {
		s.logger.Error().Err(err).Str("projectId", projectID).Msg("Failed to create rule")
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}

	s.metrics.RulesCreated.Inc()
	s.logger.Info().
		Str("projectId", projectID).
		Str("ruleId", rule.ID).
		Str("label", rule.Label).
		Msg("Created rule")
	return rule, nil
}

// persistResolved is the dispatcher callback for pending rule creations. It
// injects the resolved channel ID into the async actions and persists the
// rule. A failed resolution drops the pending rule; nothing was persisted.
func (s *RuleService) persistResolved(ctx context.Context, unit DispatchUnit) error {
	if unit.State == UnitFailed {
		s.logger.Warn().
			Str("token", unit.Token).
			Str("projectId", unit.ProjectID).
			Str("error", unit.Result.Err).
			Msg("Dropping pending rule, channel resolution failed")
		return nil
	}

	input := unit.Snapshot
	for i := range input.Actions {
		action := domain.RuleAction{
			ID:        input.Actions[i].ID,
			Channel:   input.Actions[i].Channel,
			ChannelID: input.Actions[i].ChannelID,
		}
		if s.registry.IsAsyncAction(action) {
			input.Actions[i].ChannelID = unit.Result.ChannelID
		}
	}

	_, err := s.persist(ctx, unit.ProjectID, &input)
	return err
}

// GetRule retrieves a rule by ID.
func (s *RuleService) GetRule(ctx context.Context, id string) (*domain.Rule, error) {
	rule, err := s.ruleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	if rule == nil {
		return nil, fmt.Errorf("rule not found")
	}
	return rule, nil
}

// ListRules retrieves all rules for a project.
func (s *RuleService) ListRules(ctx context.Context, projectID string) ([]*domain.Rule, error) {
	rules, err := s.ruleRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// ListActivities retrieves a rule's audit trail, oldest first.
func (s *RuleService) ListActivities(ctx context.Context, ruleID string) ([]*domain.RuleActivity, error) {
	activities, err := s.ruleRepo.ListActivities(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule activities: %w", err)
	}
	return activities, nil
}

// UpdateRule validates and replaces an existing rule, producing exactly one
// updated-activity in the same transaction. The update path requires async
// actions to carry their resolved provider-side IDs already.
func (s *RuleService) UpdateRule(ctx context.Context, projectID, ruleID string, input RuleInput) (*domain.Rule, error) {
	if err := s.validate(&input); err != nil {
		return nil, err
	}
	if idx := s.needsResolution(&input); idx >= 0 {
		return nil, domain.NewValidationError("actions",
			fmt.Sprintf("Action %q must carry a resolved channel ID on update.", input.Actions[idx].ID))
	}

	existing, err := s.ruleRepo.GetByID(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	if existing == nil || existing.ProjectID != projectID {
		return nil, fmt.Errorf("rule not found")
	}

	if input.ActorID == "" {
		input.ActorID = domain.GetActorIDFromContext(ctx)
	}
	rule := buildRule(projectID, &input)
	rule.ID = existing.ID
	rule.CreatedByID = existing.CreatedByID
	rule.CreatedAt = existing.CreatedAt

	activity := &domain.RuleActivity{
		ID:        uuid.NewString(),
		RuleID:    rule.ID,
		Type:      domain.ActivityUpdated,
		ActorID:   input.ActorID,
		CreatedAt: time.Now(),
	}
	if err := s.ruleRepo.UpdateWithActivity(ctx, rule, activity); err != nil {
		s.logger.Error().Err(err).Str("ruleId", ruleID).Msg("Failed to update rule")
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}

	s.logger.Info().Str("ruleId", rule.ID).Str("projectId", projectID).Msg("Updated rule")
	return rule, nil
}

// DeleteRule removes a rule, producing exactly one deleted-activity in the
// same transaction.
func (s *RuleService) DeleteRule(ctx context.Context, projectID, ruleID string) error {
	existing, err := s.ruleRepo.GetByID(ctx, ruleID)
	if err != nil {
		return fmt.Errorf("failed to get rule: %w", err)
	}
	if existing == nil || existing.ProjectID != projectID {
		return fmt.Errorf("rule not found")
	}

	activity := &domain.RuleActivity{
		ID:        uuid.NewString(),
		RuleID:    ruleID,
		Type:      domain.ActivityDeleted,
		ActorID:   domain.GetActorIDFromContext(ctx),
		CreatedAt: time.Now(),
	}
	if err := s.ruleRepo.DeleteWithActivity(ctx, ruleID, activity); err != nil {
		s.logger.Error().Err(err).Str("ruleId", ruleID).Msg("Failed to delete rule")
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	s.logger.Info().Str("ruleId", ruleID).Str("projectId", projectID).Msg("Deleted rule")
	return nil
}
