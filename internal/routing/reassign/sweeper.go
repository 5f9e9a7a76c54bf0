// Package reassign periodically moves stale leads to fresh agents based on
// the organization's auto-reassignment rules.
package reassign

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/internal/routing/domain"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence port for the sweep.
type Store interface {
	ListOrganizationIDs(ctx context.Context) ([]uuid.UUID, error)
	ListActiveAutoRules(ctx context.Context, orgID uuid.UUID) ([]domain.AutoReassignmentRule, error)
	// ClaimStaleLeads selects leads matching the rule's staleness criteria
	// and claims them so a concurrent sweep never picks the same lead.
	ClaimStaleLeads(ctx context.Context, rule domain.AutoReassignmentRule, limit int) ([]uuid.UUID, error)
	ReleaseStaleClaim(ctx context.Context, leadID uuid.UUID) error
	ClaimAutoRuleCursor(ctx context.Context, ruleID uuid.UUID, listLen int) (int, error)
}

// Picker selects an eligible agent, either from a pool or from an explicit
// target list starting at a claimed cursor slot.
type Picker interface {
	ResolvePool(ctx context.Context, poolID uuid.UUID) (uuid.UUID, bool, error)
	PickFrom(ctx context.Context, targets []uuid.UUID, start int) (uuid.UUID, bool, error)
}

// Assigner applies the reassignment through the ledger.
type Assigner interface {
	Assign(ctx context.Context, leadID, toAgentID uuid.UUID, method domain.Method, ruleID *uuid.UUID, reason *string) (uuid.UUID, error)
}

// Sweeper runs the reassignment sweep.
type Sweeper struct {
	store     Store
	picker    Picker
	assigner  Assigner
	log       *logger.Logger
	interval  time.Duration
	batchSize int
}

// New creates a sweeper. Interval and batch size come from scheduler config.
func New(store Store, picker Picker, assigner Assigner, log *logger.Logger, interval time.Duration, batchSize int) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize < 1 {
		batchSize = 100
	}
	return &Sweeper{
		store:     store,
		picker:    picker,
		assigner:  assigner,
		log:       log,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info("reassignment sweeper started", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("reassignment sweeper stopped")
			return
		case <-ticker.C:
			if err := s.SweepAll(ctx); err != nil {
				s.log.Error("reassignment sweep failed", "error", err)
			}
		}
	}
}

// SweepAll sweeps every organization that has active auto rules.
func (s *Sweeper) SweepAll(ctx context.Context) error {
	orgIDs, err := s.store.ListOrganizationIDs(ctx)
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}
	for _, orgID := range orgIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.Sweep(ctx, orgID); err != nil {
			s.log.Error("organization sweep failed", "organization_id", orgID, "error", err)
		}
	}
	return nil
}

// Sweep processes one organization's auto rules and returns the number of
// leads reassigned.
func (s *Sweeper) Sweep(ctx context.Context, orgID uuid.UUID) (int, error) {
	rules, err := s.store.ListActiveAutoRules(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("list auto rules: %w", err)
	}

	moved := 0
	for _, rule := range rules {
		n, err := s.applyRule(ctx, rule)
		if err != nil {
			s.log.Warn("auto rule sweep failed", "rule_id", rule.ID, "error", err)
			continue
		}
		moved += n
	}
	return moved, nil
}

func (s *Sweeper) applyRule(ctx context.Context, rule domain.AutoReassignmentRule) (int, error) {
	leadIDs, err := s.store.ClaimStaleLeads(ctx, rule, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim stale leads: %w", err)
	}

	reason := fmt.Sprintf("no contact for %d days", rule.DaysWithoutContact)
	moved := 0
	for _, leadID := range leadIDs {
		agentID, ok, err := s.pick(ctx, rule)
		if err != nil || !ok {
			// No eligible target right now; release so the next pass
			// can retry this lead.
			if relErr := s.store.ReleaseStaleClaim(ctx, leadID); relErr != nil {
				s.log.Warn("failed to release sweep claim", "lead_id", leadID, "error", relErr)
			}
			if err != nil {
				return moved, err
			}
			continue
		}

		ruleID := rule.ID
		if _, err := s.assigner.Assign(ctx, leadID, agentID, domain.MethodReassignment, &ruleID, &reason); err != nil {
			s.log.Warn("reassignment failed", "lead_id", leadID, "agent_id", agentID, "error", err)
			if relErr := s.store.ReleaseStaleClaim(ctx, leadID); relErr != nil {
				s.log.Warn("failed to release sweep claim", "lead_id", leadID, "error", relErr)
			}
			continue
		}
		moved++
	}
	return moved, nil
}

// pick resolves the rule's reassignment target: the pool when configured,
// otherwise round-robin over the rule's own target list.
func (s *Sweeper) pick(ctx context.Context, rule domain.AutoReassignmentRule) (uuid.UUID, bool, error) {
	if rule.PoolID != nil {
		return s.picker.ResolvePool(ctx, *rule.PoolID)
	}

	n := len(rule.TargetAgentIDs)
	if n == 0 {
		return uuid.Nil, false, nil
	}

	start, err := s.store.ClaimAutoRuleCursor(ctx, rule.ID, n)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("claim cursor: %w", err)
	}
	return s.picker.PickFrom(ctx, rule.TargetAgentIDs, start)
}
