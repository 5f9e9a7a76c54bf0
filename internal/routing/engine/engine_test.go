package engine

import (
	"context"
	"errors"
	"testing"

	"leadflow_backend/internal/routing/domain"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeRuleStore struct {
	rules       []domain.AssignmentRule
	pools       map[uuid.UUID]*domain.Pool
	ruleCursors map[uuid.UUID]int
}

func newFakeRuleStore(rules ...domain.AssignmentRule) *fakeRuleStore {
	return &fakeRuleStore{
		rules:       rules,
		pools:       make(map[uuid.UUID]*domain.Pool),
		ruleCursors: make(map[uuid.UUID]int),
	}
}

func (s *fakeRuleStore) ListActiveRules(_ context.Context, _ uuid.UUID) ([]domain.AssignmentRule, error) {
	return s.rules, nil
}

func (s *fakeRuleStore) ClaimRuleCursor(_ context.Context, ruleID uuid.UUID, listLen int) (int, error) {
	cur := s.ruleCursors[ruleID] % listLen
	s.ruleCursors[ruleID] = (cur + 1) % listLen
	return cur, nil
}

func (s *fakeRuleStore) GetPool(_ context.Context, poolID uuid.UUID) (domain.Pool, error) {
	p, ok := s.pools[poolID]
	if !ok {
		return domain.Pool{}, errors.New("pool not found")
	}
	return *p, nil
}

func (s *fakeRuleStore) ClaimPoolCursor(_ context.Context, poolID uuid.UUID, listLen int) (int, error) {
	p := s.pools[poolID]
	cur := p.RRCursor % listLen
	p.RRCursor = (cur + 1) % listLen
	return cur, nil
}

type fakeEligibility struct {
	ineligible map[uuid.UUID]bool
}

func (f *fakeEligibility) IsEligible(_ context.Context, agentID uuid.UUID) (bool, error) {
	return !f.ineligible[agentID], nil
}

func allEligible() *fakeEligibility {
	return &fakeEligibility{ineligible: make(map[uuid.UUID]bool)}
}

func testLead(attrs map[string]any) domain.Lead {
	return domain.Lead{ID: uuid.New(), OrganizationID: uuid.New(), Attributes: attrs}
}

func TestRoundRobinFairness(t *testing.T) {
	agents := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	rule := domain.AssignmentRule{
		ID:             uuid.New(),
		MatchType:      domain.MatchRoundRobin,
		TargetAgentIDs: agents,
		IsActive:       true,
	}
	store := newFakeRuleStore(rule)
	eng := New(store, allEligible(), logger.New("development"))

	const m = 10
	counts := make(map[uuid.UUID]int)
	for i := 0; i < m; i++ {
		res, err := eng.Evaluate(context.Background(), testLead(nil))
		if err != nil {
			t.Fatal(err)
		}
		counts[res.AgentID]++
	}

	for _, a := range agents {
		if counts[a] < m/len(agents) || counts[a] > m/len(agents)+1 {
			t.Fatalf("unfair distribution: agent got %d of %d", counts[a], m)
		}
	}
	if got := store.ruleCursors[rule.ID]; got != m%len(agents) {
		t.Fatalf("cursor after %d assignments should be %d, got %d", m, m%len(agents), got)
	}
}

func TestFirstMatchWins(t *testing.T) {
	agentA := uuid.New()
	agentB := uuid.New()
	ruleA := domain.AssignmentRule{
		ID:             uuid.New(),
		RuleOrder:      1,
		MatchType:      domain.MatchDirect,
		TargetAgentIDs: []uuid.UUID{agentA},
		IsActive:       true,
	}
	ruleB := domain.AssignmentRule{
		ID:             uuid.New(),
		RuleOrder:      2,
		MatchType:      domain.MatchDirect,
		TargetAgentIDs: []uuid.UUID{agentB},
		IsActive:       true,
	}
	eng := New(newFakeRuleStore(ruleA, ruleB), allEligible(), logger.New("development"))

	for i := 0; i < 5; i++ {
		res, err := eng.Evaluate(context.Background(), testLead(nil))
		if err != nil {
			t.Fatal(err)
		}
		if res.AgentID != agentA {
			t.Fatal("lead must always be assigned per the first matching rule")
		}
		if res.RuleID == nil || *res.RuleID != ruleA.ID {
			t.Fatal("result should reference the winning rule")
		}
	}
}

func TestBudgetRuleBeatsCatchAll(t *testing.T) {
	poolID := uuid.New()
	poolAgents := []uuid.UUID{uuid.New(), uuid.New()}
	catchAllAgent := uuid.New()

	budgetRule := domain.AssignmentRule{
		ID:        uuid.New(),
		RuleOrder: 1,
		MatchType: domain.MatchPool,
		PoolID:    &poolID,
		MatchAll:  true,
		Conditions: []domain.Condition{
			{Type: domain.ConditionFieldCompare, Field: "budget", Op: domain.OpGT, Value: float64(10_000_000)},
		},
		IsActive: true,
	}
	catchAll := domain.AssignmentRule{
		ID:             uuid.New(),
		RuleOrder:      99,
		MatchType:      domain.MatchDirect,
		TargetAgentIDs: []uuid.UUID{catchAllAgent},
		IsActive:       true,
	}
	store := newFakeRuleStore(budgetRule, catchAll)
	store.pools[poolID] = &domain.Pool{ID: poolID, MemberAgentIDs: poolAgents}
	eng := New(store, allEligible(), logger.New("development"))

	res, err := eng.Evaluate(context.Background(), testLead(map[string]any{"budget": float64(15_000_000)}))
	if err != nil {
		t.Fatal(err)
	}
	if res.AgentID == catchAllAgent {
		t.Fatal("high-budget lead must never land on the catch-all target")
	}
	if res.AgentID != poolAgents[0] && res.AgentID != poolAgents[1] {
		t.Fatal("expected an agent from the budget pool")
	}
}

func TestIneligibleRuleFallsThroughToNextRule(t *testing.T) {
	busy := uuid.New()
	fallback := uuid.New()
	first := domain.AssignmentRule{
		ID:             uuid.New(),
		RuleOrder:      1,
		MatchType:      domain.MatchRoundRobin,
		TargetAgentIDs: []uuid.UUID{busy},
		IsActive:       true,
	}
	second := domain.AssignmentRule{
		ID:             uuid.New(),
		RuleOrder:      2,
		MatchType:      domain.MatchDirect,
		TargetAgentIDs: []uuid.UUID{fallback},
		IsActive:       true,
	}
	elig := &fakeEligibility{ineligible: map[uuid.UUID]bool{busy: true}}
	eng := New(newFakeRuleStore(first, second), elig, logger.New("development"))

	res, err := eng.Evaluate(context.Background(), testLead(nil))
	if err != nil {
		t.Fatal(err)
	}
	if res.AgentID != fallback {
		t.Fatal("fully ineligible rule should fall through, not error")
	}
}

func TestDirectFallsBackToRoundRobinAmongTargets(t *testing.T) {
	primary := uuid.New()
	secondary := uuid.New()
	rule := domain.AssignmentRule{
		ID:             uuid.New(),
		MatchType:      domain.MatchDirect,
		TargetAgentIDs: []uuid.UUID{primary, secondary},
		IsActive:       true,
	}
	elig := &fakeEligibility{ineligible: map[uuid.UUID]bool{primary: true}}
	eng := New(newFakeRuleStore(rule), elig, logger.New("development"))

	res, err := eng.Evaluate(context.Background(), testLead(nil))
	if err != nil {
		t.Fatal(err)
	}
	if res.AgentID != secondary {
		t.Fatal("busy direct target should fall back to round-robin over the same list")
	}
}

func TestNoRuleMatchedReturnsErrNoMatch(t *testing.T) {
	rule := domain.AssignmentRule{
		ID:        uuid.New(),
		MatchType: domain.MatchRoundRobin,
		MatchAll:  true,
		Conditions: []domain.Condition{
			{Type: domain.ConditionFieldEquals, Field: "source", Value: "billboard"},
		},
		TargetAgentIDs: []uuid.UUID{uuid.New()},
		IsActive:       true,
	}
	eng := New(newFakeRuleStore(rule), allEligible(), logger.New("development"))

	_, err := eng.Evaluate(context.Background(), testLead(map[string]any{"source": "webform"}))
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestPickFromClampsStaleCursor(t *testing.T) {
	targets := []uuid.UUID{uuid.New(), uuid.New()}
	eng := New(newFakeRuleStore(), allEligible(), logger.New("development"))

	// Cursor persisted when the list was longer.
	agent, ok, err := eng.PickFrom(context.Background(), targets, 7)
	if err != nil || !ok {
		t.Fatalf("pick failed: ok=%v err=%v", ok, err)
	}
	if agent != targets[7%len(targets)] {
		t.Fatal("stale cursor should be clamped modulo the current list length")
	}
}
