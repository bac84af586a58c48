package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"relay-core-integrations-layer/internal/domain"
	"relay-core-integrations-layer/internal/ports"
)

// fakeIntegrationRepo is an in-memory IntegrationRepository enforcing the
// (provider, externalId) unique index under a mutex, like the real index
// arbitrates concurrent inserts.
type fakeIntegrationRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Integration // by ID
}

func newFakeIntegrationRepo() *fakeIntegrationRepo {
	return &fakeIntegrationRepo{rows: make(map[string]*domain.Integration)}
}

func (r *fakeIntegrationRepo) Create(_ context.Context, integration *domain.Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Provider == integration.Provider && row.ExternalID == integration.ExternalID {
			return fmt.Errorf("integration: %w", ports.ErrDuplicate)
		}
	}
	cp := *integration
	r.rows[integration.ID] = &cp
	return nil
}

func (r *fakeIntegrationRepo) GetByID(_ context.Context, id string) (*domain.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeIntegrationRepo) GetByProviderAndExternalID(_ context.Context, provider, externalID string) (*domain.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Provider == provider && row.ExternalID == externalID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

// fakeAssociationRepo enforces the (organizationId, integrationId) unique
// index under a mutex.
type fakeAssociationRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.OrganizationIntegration // by ID
}

func newFakeAssociationRepo() *fakeAssociationRepo {
	return &fakeAssociationRepo{rows: make(map[string]*domain.OrganizationIntegration)}
}

func (r *fakeAssociationRepo) Create(_ context.Context, assoc *domain.OrganizationIntegration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.OrganizationID == assoc.OrganizationID && row.IntegrationID == assoc.IntegrationID {
			return fmt.Errorf("association: %w", ports.ErrDuplicate)
		}
	}
	cp := *assoc
	r.rows[assoc.ID] = &cp
	return nil
}

func (r *fakeAssociationRepo) GetByPair(_ context.Context, organizationID, integrationID string) (*domain.OrganizationIntegration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.OrganizationID == organizationID && row.IntegrationID == integrationID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeAssociationRepo) UpdateDefaultIdentity(_ context.Context, id, defaultIdentityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return fmt.Errorf("association not found")
	}
	row.DefaultIdentityID = defaultIdentityID
	return nil
}

func (r *fakeAssociationRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// fakeRuleRepo stores rules and activities and mimics the transactional
// contract: either both writes land or neither does.
type fakeRuleRepo struct {
	mu         sync.Mutex
	rules      map[string]*domain.Rule
	activities []*domain.RuleActivity
	failCreate bool // simulate a transaction abort
}

func newFakeRuleRepo() *fakeRuleRepo {
	return &fakeRuleRepo{rules: make(map[string]*domain.Rule)}
}

func (r *fakeRuleRepo) CreateWithActivity(_ context.Context, rule *domain.Rule, activity *domain.RuleActivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		return fmt.Errorf("transaction aborted")
	}
	cp := *rule
	r.rules[rule.ID] = &cp
	acp := *activity
	r.activities = append(r.activities, &acp)
	return nil
}

func (r *fakeRuleRepo) UpdateWithActivity(_ context.Context, rule *domain.Rule, activity *domain.RuleActivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[rule.ID]; !ok {
		return fmt.Errorf("rule not found")
	}
	cp := *rule
	r.rules[rule.ID] = &cp
	acp := *activity
	r.activities = append(r.activities, &acp)
	return nil
}

func (r *fakeRuleRepo) DeleteWithActivity(_ context.Context, ruleID string, activity *domain.RuleActivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[ruleID]; !ok {
		return fmt.Errorf("rule not found")
	}
	delete(r.rules, ruleID)
	acp := *activity
	r.activities = append(r.activities, &acp)
	return nil
}

func (r *fakeRuleRepo) GetByID(_ context.Context, id string) (*domain.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule, ok := r.rules[id]; ok {
		cp := *rule
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeRuleRepo) ListByProject(_ context.Context, projectID string) ([]*domain.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rules []*domain.Rule
	for _, rule := range r.rules {
		if rule.ProjectID == projectID {
			cp := *rule
			rules = append(rules, &cp)
		}
	}
	return rules, nil
}

func (r *fakeRuleRepo) ListActivities(_ context.Context, ruleID string) ([]*domain.RuleActivity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var activities []*domain.RuleActivity
	for _, a := range r.activities {
		if a.RuleID == ruleID {
			cp := *a
			activities = append(activities, &cp)
		}
	}
	return activities, nil
}

func (r *fakeRuleRepo) activitiesFor(ruleID string, typ domain.RuleActivityType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.activities {
		if a.RuleID == ruleID && a.Type == typ {
			n++
		}
	}
	return n
}

// fakeMappingRepo enforces the mapping triple indexes.
type fakeMappingRepo struct {
	mu    sync.Mutex
	teams map[string]*domain.ExternalTeam
	users map[string]*domain.ExternalUser
}

func newFakeMappingRepo() *fakeMappingRepo {
	return &fakeMappingRepo{
		teams: make(map[string]*domain.ExternalTeam),
		users: make(map[string]*domain.ExternalUser),
	}
}

func (r *fakeMappingRepo) CreateTeam(_ context.Context, mapping *domain.ExternalTeam) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.teams {
		if row.TeamID == mapping.TeamID && row.Provider == mapping.Provider && row.ExternalName == mapping.ExternalName {
			return fmt.Errorf("external team: %w", ports.ErrDuplicate)
		}
	}
	cp := *mapping
	r.teams[mapping.ID] = &cp
	return nil
}

func (r *fakeMappingRepo) GetTeam(_ context.Context, teamID, provider, externalName string) (*domain.ExternalTeam, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.teams {
		if row.TeamID == teamID && row.Provider == provider && row.ExternalName == externalName {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeMappingRepo) ListTeams(_ context.Context, teamID string) ([]*domain.ExternalTeam, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var mappings []*domain.ExternalTeam
	for _, row := range r.teams {
		if row.TeamID == teamID {
			cp := *row
			mappings = append(mappings, &cp)
		}
	}
	return mappings, nil
}

func (r *fakeMappingRepo) DeleteTeam(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teams[id]; !ok {
		return fmt.Errorf("external team mapping not found")
	}
	delete(r.teams, id)
	return nil
}

func (r *fakeMappingRepo) CreateUser(_ context.Context, mapping *domain.ExternalUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.users {
		if row.MemberID == mapping.MemberID && row.Provider == mapping.Provider && row.ExternalName == mapping.ExternalName {
			return fmt.Errorf("external user: %w", ports.ErrDuplicate)
		}
	}
	cp := *mapping
	r.users[mapping.ID] = &cp
	return nil
}

func (r *fakeMappingRepo) GetUser(_ context.Context, memberID, provider, externalName string) (*domain.ExternalUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.users {
		if row.MemberID == memberID && row.Provider == provider && row.ExternalName == externalName {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeMappingRepo) ListUsers(_ context.Context, memberID string) ([]*domain.ExternalUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var mappings []*domain.ExternalUser
	for _, row := range r.users {
		if row.MemberID == memberID {
			cp := *row
			mappings = append(mappings, &cp)
		}
	}
	return mappings, nil
}

func (r *fakeMappingRepo) DeleteUser(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return fmt.Errorf("external user mapping not found")
	}
	delete(r.users, id)
	return nil
}

// fakeDispatchStore keeps dispatch records in memory behind the same store
// contract Redis provides in production: shared among dispatcher instances,
// token reuse rejected, queued-to-terminal transitions arbitrated centrally.
type fakeDispatchStore struct {
	mu      sync.Mutex
	records map[string]*ports.DispatchRecord
}

func newFakeDispatchStore() *fakeDispatchStore {
	return &fakeDispatchStore{records: make(map[string]*ports.DispatchRecord)}
}

func (s *fakeDispatchStore) CreateRecord(_ context.Context, record *ports.DispatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.Token]; ok {
		return fmt.Errorf("dispatch record %s: %w", record.Token, ports.ErrDuplicate)
	}
	cp := *record
	s.records[record.Token] = &cp
	return nil
}

func (s *fakeDispatchStore) GetRecord(_ context.Context, token string) (*ports.DispatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[token]
	if !ok {
		return nil, nil
	}
	cp := *record
	return &cp, nil
}

func (s *fakeDispatchStore) TransitionRecord(_ context.Context, token, state, resultChannelID, resultErr string, overwrite bool) (*ports.DispatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[token]
	if !ok {
		return nil, nil
	}
	if record.State != ports.RecordStateQueued && !overwrite {
		return nil, ports.ErrAlreadyResolved
	}
	record.State = state
	record.ResultChannelID = resultChannelID
	record.ResultErr = resultErr
	record.FinishedAt = time.Now()
	cp := *record
	return &cp, nil
}

func (s *fakeDispatchStore) DeleteRecord(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, token)
	return nil
}

func (s *fakeDispatchStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// fakeQueue records enqueued payloads.
type fakeQueue struct {
	mu       sync.Mutex
	enqueued map[string][]byte
	failNext bool
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{enqueued: make(map[string][]byte)}
}

func (q *fakeQueue) Enqueue(_ context.Context, token string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failNext {
		q.failNext = false
		return fmt.Errorf("queue unavailable")
	}
	q.enqueued[token] = payload
	return nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.enqueued)
}

// fakePublisher records published association events.
type fakePublisher struct {
	mu     sync.Mutex
	events []domain.IntegrationAssociated
}

func (p *fakePublisher) Publish(event domain.IntegrationAssociated) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
