// Package engine evaluates assignment rules to pick an owning agent for a
// lead. Rules are evaluated first-match-wins in ascending rule order.
package engine

import (
	"context"
	"errors"
	"fmt"

	"leadflow_backend/internal/routing/domain"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// ErrNoMatch is returned when no active rule matches the lead. The caller
// decides whether a default pool applies or the lead stays unassigned.
var ErrNoMatch = errors.New("no assignment rule matched")

// RuleStore is the persistence port for rules and pools.
type RuleStore interface {
	// ListActiveRules returns active rules ordered by ascending rule_order.
	ListActiveRules(ctx context.Context, orgID uuid.UUID) ([]domain.AssignmentRule, error)
	// ClaimRuleCursor atomically advances the rule's round-robin cursor
	// modulo listLen and returns the claimed slot (the pre-advance value,
	// clamped into [0, listLen)).
	ClaimRuleCursor(ctx context.Context, ruleID uuid.UUID, listLen int) (int, error)
	GetPool(ctx context.Context, poolID uuid.UUID) (domain.Pool, error)
	ClaimPoolCursor(ctx context.Context, poolID uuid.UUID, listLen int) (int, error)
}

// Eligibility answers whether an agent can take another lead.
type Eligibility interface {
	IsEligible(ctx context.Context, agentID uuid.UUID) (bool, error)
}

// Result is a successful routing decision.
type Result struct {
	AgentID uuid.UUID
	RuleID  *uuid.UUID
	Method  domain.Method
}

// Engine is the assignment rule engine.
type Engine struct {
	rules   RuleStore
	tracker Eligibility
	log     *logger.Logger
}

// New creates a rule engine.
func New(rules RuleStore, tracker Eligibility, log *logger.Logger) *Engine {
	return &Engine{rules: rules, tracker: tracker, log: log}
}

// Evaluate picks an agent for the lead. The first rule whose conditions
// match wins; later rules are never consulted for a better fit. A matching
// rule whose entire target list is ineligible counts as no-match for that
// rule only, and evaluation continues.
func (e *Engine) Evaluate(ctx context.Context, lead domain.Lead) (Result, error) {
	rules, err := e.rules.ListActiveRules(ctx, lead.OrganizationID)
	if err != nil {
		return Result{}, fmt.Errorf("list rules: %w", err)
	}

	attrs := lead.MatchAttributes()

	for _, rule := range rules {
		if !domain.MatchConditions(rule.Conditions, rule.MatchAll, attrs) {
			continue
		}

		agentID, ok, err := e.resolve(ctx, rule)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			// Whole target list ineligible; try the next rule.
			continue
		}

		ruleID := rule.ID
		return Result{AgentID: agentID, RuleID: &ruleID, Method: domain.MethodRule}, nil
	}

	return Result{}, ErrNoMatch
}

// resolve applies the rule's match type to pick a target agent.
func (e *Engine) resolve(ctx context.Context, rule domain.AssignmentRule) (uuid.UUID, bool, error) {
	switch rule.MatchType {
	case domain.MatchDirect:
		if len(rule.TargetAgentIDs) == 0 {
			return uuid.Nil, false, nil
		}
		direct := rule.TargetAgentIDs[0]
		eligible, err := e.tracker.IsEligible(ctx, direct)
		if err != nil {
			return uuid.Nil, false, err
		}
		if eligible {
			return direct, true, nil
		}
		// Direct target busy: fall through to round-robin among the
		// same target list.
		return e.roundRobin(ctx, rule.ID, rule.TargetAgentIDs, e.rules.ClaimRuleCursor)

	case domain.MatchRoundRobin:
		return e.roundRobin(ctx, rule.ID, rule.TargetAgentIDs, e.rules.ClaimRuleCursor)

	case domain.MatchPool:
		if rule.PoolID == nil {
			return uuid.Nil, false, nil
		}
		return e.ResolvePool(ctx, *rule.PoolID)

	default:
		return uuid.Nil, false, fmt.Errorf("rule %s: unknown match type %q", rule.ID, rule.MatchType)
	}
}

// ResolvePool selects an agent from the pool via the pool's own cursor.
func (e *Engine) ResolvePool(ctx context.Context, poolID uuid.UUID) (uuid.UUID, bool, error) {
	pool, err := e.rules.GetPool(ctx, poolID)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("get pool %s: %w", poolID, err)
	}
	return e.roundRobin(ctx, pool.ID, pool.MemberAgentIDs, e.rules.ClaimPoolCursor)
}

type claimFunc func(ctx context.Context, id uuid.UUID, listLen int) (int, error)

// roundRobin claims the next cursor slot atomically and walks forward from
// it, skipping ineligible agents. The walk is bounded by the list length so
// a fully ineligible list terminates as no-match.
func (e *Engine) roundRobin(ctx context.Context, id uuid.UUID, targets []uuid.UUID, claim claimFunc) (uuid.UUID, bool, error) {
	n := len(targets)
	if n == 0 {
		return uuid.Nil, false, nil
	}

	start, err := claim(ctx, id, n)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("claim cursor: %w", err)
	}

	return e.PickFrom(ctx, targets, start)
}

// PickFrom walks the target list starting at the given slot and returns the
// first eligible agent. Shared with the reassignment sweeper.
func (e *Engine) PickFrom(ctx context.Context, targets []uuid.UUID, start int) (uuid.UUID, bool, error) {
	n := len(targets)
	if n == 0 {
		return uuid.Nil, false, nil
	}

	// Clamp defends against a cursor persisted past a now-shorter list.
	start %= n

	for k := 0; k < n; k++ {
		candidate := targets[(start+k)%n]
		eligible, err := e.tracker.IsEligible(ctx, candidate)
		if err != nil {
			return uuid.Nil, false, err
		}
		if eligible {
			return candidate, true, nil
		}
	}
	return uuid.Nil, false, nil
}
