package reassign

import (
	"context"
	"errors"
	"testing"

	"leadflow_backend/internal/routing/domain"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	orgs       []uuid.UUID
	rules      map[uuid.UUID][]domain.AutoReassignmentRule
	stale      map[uuid.UUID][]uuid.UUID // rule id -> lead ids
	cursors    map[uuid.UUID]int
	released   []uuid.UUID
	claimCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rules:   make(map[uuid.UUID][]domain.AutoReassignmentRule),
		stale:   make(map[uuid.UUID][]uuid.UUID),
		cursors: make(map[uuid.UUID]int),
	}
}

func (s *fakeStore) ListOrganizationIDs(context.Context) ([]uuid.UUID, error) {
	return s.orgs, nil
}

func (s *fakeStore) ListActiveAutoRules(_ context.Context, orgID uuid.UUID) ([]domain.AutoReassignmentRule, error) {
	return s.rules[orgID], nil
}

func (s *fakeStore) ClaimStaleLeads(_ context.Context, rule domain.AutoReassignmentRule, limit int) ([]uuid.UUID, error) {
	s.claimCalls++
	leads := s.stale[rule.ID]
	if len(leads) > limit {
		leads = leads[:limit]
	}
	// Claimed leads disappear from the stale set, like the durable claim.
	s.stale[rule.ID] = s.stale[rule.ID][len(leads):]
	return leads, nil
}

func (s *fakeStore) ReleaseStaleClaim(_ context.Context, leadID uuid.UUID) error {
	s.released = append(s.released, leadID)
	return nil
}

func (s *fakeStore) ClaimAutoRuleCursor(_ context.Context, ruleID uuid.UUID, listLen int) (int, error) {
	slot := s.cursors[ruleID] % listLen
	s.cursors[ruleID] = (slot + 1) % listLen
	return slot, nil
}

type fakePicker struct {
	eligible map[uuid.UUID]bool
	poolPick *uuid.UUID
}

func (p *fakePicker) ResolvePool(context.Context, uuid.UUID) (uuid.UUID, bool, error) {
	if p.poolPick == nil {
		return uuid.Nil, false, nil
	}
	return *p.poolPick, true, nil
}

func (p *fakePicker) PickFrom(_ context.Context, targets []uuid.UUID, start int) (uuid.UUID, bool, error) {
	n := len(targets)
	if n == 0 {
		return uuid.Nil, false, nil
	}
	start %= n
	for k := 0; k < n; k++ {
		candidate := targets[(start+k)%n]
		if p.eligible[candidate] {
			return candidate, true, nil
		}
	}
	return uuid.Nil, false, nil
}

type fakeAssigner struct {
	assigned map[uuid.UUID]uuid.UUID // lead -> agent
	methods  map[uuid.UUID]domain.Method
	failFor  map[uuid.UUID]bool
}

func newFakeAssigner() *fakeAssigner {
	return &fakeAssigner{
		assigned: make(map[uuid.UUID]uuid.UUID),
		methods:  make(map[uuid.UUID]domain.Method),
		failFor:  make(map[uuid.UUID]bool),
	}
}

func (a *fakeAssigner) Assign(_ context.Context, leadID, toAgentID uuid.UUID, method domain.Method, _ *uuid.UUID, _ *string) (uuid.UUID, error) {
	if a.failFor[leadID] {
		return uuid.Nil, errors.New("ledger rejected assignment")
	}
	a.assigned[leadID] = toAgentID
	a.methods[leadID] = method
	return uuid.New(), nil
}

func newTestSweeper(store *fakeStore, picker *fakePicker, assigner *fakeAssigner) *Sweeper {
	return New(store, picker, assigner, logger.New("development"), 0, 50)
}

func TestSweepReassignsStaleLeadsRoundRobin(t *testing.T) {
	orgID := uuid.New()
	agents := []uuid.UUID{uuid.New(), uuid.New()}
	rule := domain.AutoReassignmentRule{
		ID:                 uuid.New(),
		OrganizationID:     orgID,
		Stages:             []string{"new", "contacted"},
		DaysWithoutContact: 7,
		TargetAgentIDs:     agents,
		IsActive:           true,
	}

	leads := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	store := newFakeStore()
	store.rules[orgID] = []domain.AutoReassignmentRule{rule}
	store.stale[rule.ID] = append([]uuid.UUID(nil), leads...)

	picker := &fakePicker{eligible: map[uuid.UUID]bool{agents[0]: true, agents[1]: true}}
	assigner := newFakeAssigner()
	sweeper := newTestSweeper(store, picker, assigner)

	moved, err := sweeper.Sweep(context.Background(), orgID)
	if err != nil {
		t.Fatal(err)
	}
	if moved != len(leads) {
		t.Fatalf("expected %d reassignments, got %d", len(leads), moved)
	}

	// Targets alternate via the cursor.
	counts := make(map[uuid.UUID]int)
	for _, leadID := range leads {
		agent, ok := assigner.assigned[leadID]
		if !ok {
			t.Fatalf("lead %s was not reassigned", leadID)
		}
		if assigner.methods[leadID] != domain.MethodReassignment {
			t.Fatalf("expected reassignment method, got %s", assigner.methods[leadID])
		}
		counts[agent]++
	}
	if counts[agents[0]] != 2 || counts[agents[1]] != 2 {
		t.Fatalf("expected an even split, got %v", counts)
	}
}

func TestSweepUsesPoolWhenConfigured(t *testing.T) {
	orgID := uuid.New()
	poolID := uuid.New()
	poolAgent := uuid.New()
	rule := domain.AutoReassignmentRule{
		ID:             uuid.New(),
		OrganizationID: orgID,
		PoolID:         &poolID,
		IsActive:       true,
	}

	leadID := uuid.New()
	store := newFakeStore()
	store.rules[orgID] = []domain.AutoReassignmentRule{rule}
	store.stale[rule.ID] = []uuid.UUID{leadID}

	assigner := newFakeAssigner()
	sweeper := newTestSweeper(store, &fakePicker{poolPick: &poolAgent}, assigner)

	moved, err := sweeper.Sweep(context.Background(), orgID)
	if err != nil {
		t.Fatal(err)
	}
	if moved != 1 {
		t.Fatalf("expected 1 reassignment, got %d", moved)
	}
	if assigner.assigned[leadID] != poolAgent {
		t.Fatal("lead should go to the pool's agent")
	}
}

func TestSweepReleasesClaimWhenNoEligibleTarget(t *testing.T) {
	orgID := uuid.New()
	busyAgent := uuid.New()
	rule := domain.AutoReassignmentRule{
		ID:             uuid.New(),
		OrganizationID: orgID,
		TargetAgentIDs: []uuid.UUID{busyAgent},
		IsActive:       true,
	}

	leadID := uuid.New()
	store := newFakeStore()
	store.rules[orgID] = []domain.AutoReassignmentRule{rule}
	store.stale[rule.ID] = []uuid.UUID{leadID}

	assigner := newFakeAssigner()
	sweeper := newTestSweeper(store, &fakePicker{eligible: map[uuid.UUID]bool{}}, assigner)

	moved, err := sweeper.Sweep(context.Background(), orgID)
	if err != nil {
		t.Fatal(err)
	}
	if moved != 0 {
		t.Fatalf("expected no reassignments, got %d", moved)
	}
	if len(assigner.assigned) != 0 {
		t.Fatal("nothing should be assigned")
	}
	if len(store.released) != 1 || store.released[0] != leadID {
		t.Fatalf("claim should be released for retry, got %v", store.released)
	}
}

func TestSweepReleasesClaimWhenAssignFails(t *testing.T) {
	orgID := uuid.New()
	agent := uuid.New()
	rule := domain.AutoReassignmentRule{
		ID:             uuid.New(),
		OrganizationID: orgID,
		TargetAgentIDs: []uuid.UUID{agent},
		IsActive:       true,
	}

	goodLead := uuid.New()
	badLead := uuid.New()
	store := newFakeStore()
	store.rules[orgID] = []domain.AutoReassignmentRule{rule}
	store.stale[rule.ID] = []uuid.UUID{badLead, goodLead}

	assigner := newFakeAssigner()
	assigner.failFor[badLead] = true
	picker := &fakePicker{eligible: map[uuid.UUID]bool{agent: true}}
	sweeper := newTestSweeper(store, picker, assigner)

	moved, err := sweeper.Sweep(context.Background(), orgID)
	if err != nil {
		t.Fatal(err)
	}
	if moved != 1 {
		t.Fatalf("expected 1 reassignment, got %d", moved)
	}
	if len(store.released) != 1 || store.released[0] != badLead {
		t.Fatalf("failed lead's claim should be released, got %v", store.released)
	}
}

func TestSweepAllCoversEveryOrganization(t *testing.T) {
	store := newFakeStore()
	orgA := uuid.New()
	orgB := uuid.New()
	store.orgs = []uuid.UUID{orgA, orgB}

	agent := uuid.New()
	for _, orgID := range store.orgs {
		rule := domain.AutoReassignmentRule{
			ID:             uuid.New(),
			OrganizationID: orgID,
			TargetAgentIDs: []uuid.UUID{agent},
			IsActive:       true,
		}
		store.rules[orgID] = []domain.AutoReassignmentRule{rule}
		store.stale[rule.ID] = []uuid.UUID{uuid.New()}
	}

	assigner := newFakeAssigner()
	picker := &fakePicker{eligible: map[uuid.UUID]bool{agent: true}}
	sweeper := newTestSweeper(store, picker, assigner)

	if err := sweeper.SweepAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(assigner.assigned) != 2 {
		t.Fatalf("expected one reassignment per organization, got %d", len(assigner.assigned))
	}
}
