package repository

import (
	"context"
	"errors"

	"leadflow_backend/internal/routing/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrRuleNotFound is returned when a rule id does not exist.
var ErrRuleNotFound = errors.New("assignment rule not found")

// ErrPoolNotFound is returned when a pool id does not exist.
var ErrPoolNotFound = errors.New("agent pool not found")

const ruleColumns = `id, organization_id, name, rule_order, match_type, conditions,
	match_all, target_agent_ids, pool_id, rr_cursor, is_active, version`

func scanRule(row pgx.Row) (domain.AssignmentRule, error) {
	var rule domain.AssignmentRule
	var matchType string
	err := row.Scan(
		&rule.ID, &rule.OrganizationID, &rule.Name, &rule.RuleOrder, &matchType,
		&rule.Conditions, &rule.MatchAll, &rule.TargetAgentIDs, &rule.PoolID,
		&rule.RRCursor, &rule.IsActive, &rule.Version,
	)
	rule.MatchType = domain.MatchType(matchType)
	return rule, err
}

// ListActiveRules returns the organization's active rules in evaluation order.
func (r *Repository) ListActiveRules(ctx context.Context, orgID uuid.UUID) ([]domain.AssignmentRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM assignment_rules
		WHERE organization_id = $1 AND is_active
		ORDER BY rule_order ASC, created_at ASC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.AssignmentRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListRules returns all rules for an organization, active or not.
func (r *Repository) ListRules(ctx context.Context, orgID uuid.UUID) ([]domain.AssignmentRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM assignment_rules
		WHERE organization_id = $1
		ORDER BY rule_order ASC, created_at ASC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.AssignmentRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// CreateRule inserts a new assignment rule.
func (r *Repository) CreateRule(ctx context.Context, rule domain.AssignmentRule) (uuid.UUID, error) {
	conditions := rule.Conditions
	if conditions == nil {
		conditions = []domain.Condition{}
	}
	targets := rule.TargetAgentIDs
	if targets == nil {
		targets = []uuid.UUID{}
	}

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO assignment_rules
			(organization_id, name, rule_order, match_type, conditions, match_all, target_agent_ids, pool_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, rule.OrganizationID, rule.Name, rule.RuleOrder, string(rule.MatchType),
		conditions, rule.MatchAll, targets, rule.PoolID, rule.IsActive).Scan(&id)
	return id, err
}

// SetRuleActive toggles a rule and bumps its version.
func (r *Repository) SetRuleActive(ctx context.Context, ruleID uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE assignment_rules
		SET is_active = $2, version = version + 1, updated_at = now()
		WHERE id = $1
	`, ruleID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// ClaimRuleCursor atomically advances the rule's round-robin cursor modulo
// listLen and returns the claimed slot. The stored cursor is clamped into
// range as part of the same statement, so a cursor persisted against a
// longer target list degrades gracefully.
func (r *Repository) ClaimRuleCursor(ctx context.Context, ruleID uuid.UUID, listLen int) (int, error) {
	var next int
	err := r.pool.QueryRow(ctx, `
		UPDATE assignment_rules
		SET rr_cursor = ((rr_cursor % $2) + 1) % $2, updated_at = now()
		WHERE id = $1
		RETURNING (rr_cursor + $2 - 1) % $2
	`, ruleID, listLen).Scan(&next)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrRuleNotFound
	}
	return next, err
}

// GetPool loads an agent pool.
func (r *Repository) GetPool(ctx context.Context, poolID uuid.UUID) (domain.Pool, error) {
	var p domain.Pool
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, name, member_agent_ids, rr_cursor
		FROM agent_pools
		WHERE id = $1
	`, poolID).Scan(&p.ID, &p.OrganizationID, &p.Name, &p.MemberAgentIDs, &p.RRCursor)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Pool{}, ErrPoolNotFound
	}
	return p, err
}

// CreatePool inserts a new agent pool.
func (r *Repository) CreatePool(ctx context.Context, p domain.Pool) (uuid.UUID, error) {
	members := p.MemberAgentIDs
	if members == nil {
		members = []uuid.UUID{}
	}

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO agent_pools (organization_id, name, member_agent_ids)
		VALUES ($1, $2, $3)
		RETURNING id
	`, p.OrganizationID, p.Name, members).Scan(&id)
	return id, err
}

// ClaimPoolCursor atomically advances the pool's cursor, mirroring
// ClaimRuleCursor.
func (r *Repository) ClaimPoolCursor(ctx context.Context, poolID uuid.UUID, listLen int) (int, error) {
	var next int
	err := r.pool.QueryRow(ctx, `
		UPDATE agent_pools
		SET rr_cursor = ((rr_cursor % $2) + 1) % $2, updated_at = now()
		WHERE id = $1
		RETURNING (rr_cursor + $2 - 1) % $2
	`, poolID, listLen).Scan(&next)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrPoolNotFound
	}
	return next, err
}
