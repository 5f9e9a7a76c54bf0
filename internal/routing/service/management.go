package service

import (
	"context"
	"errors"

	"leadflow_backend/internal/routing/domain"
	"leadflow_backend/internal/routing/repository"
	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
)

// AvailabilityTracker mirrors availability changes into the in-process
// load tracker.
type AvailabilityTracker interface {
	SetAvailability(ctx context.Context, agentID uuid.UUID, available bool) error
}

// Management covers the configuration surface: agents, rules, pools and
// auto-reassignment rules.
type Management struct {
	repo    *repository.Repository
	tracker AvailabilityTracker
}

// NewManagement creates the management service.
func NewManagement(repo *repository.Repository, tracker AvailabilityTracker) *Management {
	return &Management{repo: repo, tracker: tracker}
}

// CreateAgent registers a routable agent.
func (m *Management) CreateAgent(ctx context.Context, a domain.Agent) (uuid.UUID, error) {
	if a.MaxCapacity < 1 {
		return uuid.Nil, apperr.Validation("max capacity must be at least 1")
	}
	id, err := m.repo.CreateAgent(ctx, a)
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.KindInternal, "failed to create agent", err)
	}
	return id, nil
}

// SetAgentAvailability flips the durable flag and the tracker's view.
func (m *Management) SetAgentAvailability(ctx context.Context, agentID uuid.UUID, available bool) error {
	if err := m.repo.SetAgentAvailability(ctx, agentID, available); err != nil {
		if errors.Is(err, repository.ErrAgentNotFound) {
			return apperr.NotFound("agent not found")
		}
		return apperr.Wrap(apperr.KindInternal, "failed to update availability", err)
	}
	if err := m.tracker.SetAvailability(ctx, agentID, available); err != nil {
		// Durable flag already changed; the tracker re-hydrates on demand.
		return nil
	}
	return nil
}

// TouchLeadContact stamps the lead's last contact time, resetting its
// staleness clock for the reassignment sweep.
func (m *Management) TouchLeadContact(ctx context.Context, leadID uuid.UUID) error {
	if err := m.repo.TouchLeadContact(ctx, leadID); err != nil {
		if errors.Is(err, repository.ErrLeadNotFound) {
			return apperr.NotFound("lead not found")
		}
		return apperr.Wrap(apperr.KindInternal, "failed to record contact", err)
	}
	return nil
}

// CreateRule adds an assignment rule.
func (m *Management) CreateRule(ctx context.Context, rule domain.AssignmentRule) (uuid.UUID, error) {
	if err := validateRule(rule); err != nil {
		return uuid.Nil, err
	}
	id, err := m.repo.CreateRule(ctx, rule)
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.KindInternal, "failed to create rule", err)
	}
	return id, nil
}

// ListRules returns all rules for an organization in evaluation order.
func (m *Management) ListRules(ctx context.Context, orgID uuid.UUID) ([]domain.AssignmentRule, error) {
	rules, err := m.repo.ListRules(ctx, orgID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list rules", err)
	}
	if rules == nil {
		rules = []domain.AssignmentRule{}
	}
	return rules, nil
}

// SetRuleActive toggles a rule.
func (m *Management) SetRuleActive(ctx context.Context, ruleID uuid.UUID, active bool) error {
	if err := m.repo.SetRuleActive(ctx, ruleID, active); err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return apperr.NotFound("rule not found")
		}
		return apperr.Wrap(apperr.KindInternal, "failed to update rule", err)
	}
	return nil
}

// CreatePool adds a named agent pool.
func (m *Management) CreatePool(ctx context.Context, p domain.Pool) (uuid.UUID, error) {
	if len(p.MemberAgentIDs) == 0 {
		return uuid.Nil, apperr.Validation("pool needs at least one member")
	}
	id, err := m.repo.CreatePool(ctx, p)
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.KindInternal, "failed to create pool", err)
	}
	return id, nil
}

// CreateAutoRule adds an auto-reassignment rule for the sweep.
func (m *Management) CreateAutoRule(ctx context.Context, rule domain.AutoReassignmentRule) (uuid.UUID, error) {
	if rule.DaysWithoutContact < 1 {
		return uuid.Nil, apperr.Validation("days without contact must be at least 1")
	}
	if len(rule.Stages) == 0 {
		return uuid.Nil, apperr.Validation("at least one stage is required")
	}
	if rule.PoolID == nil && len(rule.TargetAgentIDs) == 0 {
		return uuid.Nil, apperr.Validation("a pool or target agents are required")
	}
	id, err := m.repo.CreateAutoRule(ctx, rule)
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.KindInternal, "failed to create auto rule", err)
	}
	return id, nil
}

func validateRule(rule domain.AssignmentRule) error {
	switch rule.MatchType {
	case domain.MatchDirect, domain.MatchRoundRobin:
		if len(rule.TargetAgentIDs) == 0 {
			return apperr.Validation("rule needs target agents")
		}
	case domain.MatchPool:
		if rule.PoolID == nil {
			return apperr.Validation("pool rule needs a pool id")
		}
	default:
		return apperr.Validation("unknown match type")
	}

	for _, cond := range rule.Conditions {
		if err := cond.Validate(); err != nil {
			return apperr.Validation(err.Error())
		}
	}
	return nil
}
