package repository

import (
	"context"
	"errors"

	"leadflow_backend/internal/routing/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListActiveAutoRules returns the organization's active auto-reassignment rules.
func (r *Repository) ListActiveAutoRules(ctx context.Context, orgID uuid.UUID) ([]domain.AutoReassignmentRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, name, stages, days_without_contact,
		       target_agent_ids, pool_id, rr_cursor, is_active
		FROM auto_reassignment_rules
		WHERE organization_id = $1 AND is_active
		ORDER BY created_at ASC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.AutoReassignmentRule
	for rows.Next() {
		var rule domain.AutoReassignmentRule
		if err := rows.Scan(
			&rule.ID, &rule.OrganizationID, &rule.Name, &rule.Stages, &rule.DaysWithoutContact,
			&rule.TargetAgentIDs, &rule.PoolID, &rule.RRCursor, &rule.IsActive,
		); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// CreateAutoRule inserts a new auto-reassignment rule.
func (r *Repository) CreateAutoRule(ctx context.Context, rule domain.AutoReassignmentRule) (uuid.UUID, error) {
	stages := rule.Stages
	if stages == nil {
		stages = []string{}
	}
	targets := rule.TargetAgentIDs
	if targets == nil {
		targets = []uuid.UUID{}
	}

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO auto_reassignment_rules
			(organization_id, name, stages, days_without_contact, target_agent_ids, pool_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, rule.OrganizationID, rule.Name, stages, rule.DaysWithoutContact,
		targets, rule.PoolID, rule.IsActive).Scan(&id)
	return id, err
}

// ClaimStaleLeads selects and claims leads that match the auto rule's
// stages and have gone uncontacted past the threshold. Claiming stamps
// reassignment_due_at inside the same statement so concurrent sweeps never
// pick the same lead twice; the subsequent assignment clears the stamp.
func (r *Repository) ClaimStaleLeads(ctx context.Context, rule domain.AutoReassignmentRule, limit int) ([]uuid.UUID, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		WITH cte AS (
			SELECT id
			FROM leads
			WHERE organization_id = $1
			  AND stage = ANY($2)
			  AND last_contacted_at IS NOT NULL
			  AND last_contacted_at < now() - make_interval(days => $3)
			  AND reassignment_due_at IS NULL
			ORDER BY last_contacted_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		UPDATE leads l
		SET reassignment_due_at = now(), updated_at = now()
		FROM cte
		WHERE l.id = cte.id
		RETURNING l.id
	`, rule.OrganizationID, rule.Stages, rule.DaysWithoutContact, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReleaseStaleClaim clears a sweep claim when assignment failed, so the
// lead becomes visible to the next pass.
func (r *Repository) ReleaseStaleClaim(ctx context.Context, leadID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads SET reassignment_due_at = NULL, updated_at = now() WHERE id = $1
	`, leadID)
	return err
}

// ClaimAutoRuleCursor atomically advances the auto rule's round-robin cursor.
func (r *Repository) ClaimAutoRuleCursor(ctx context.Context, ruleID uuid.UUID, listLen int) (int, error) {
	var next int
	err := r.pool.QueryRow(ctx, `
		UPDATE auto_reassignment_rules
		SET rr_cursor = ((rr_cursor % $2) + 1) % $2, updated_at = now()
		WHERE id = $1
		RETURNING (rr_cursor + $2 - 1) % $2
	`, ruleID, listLen).Scan(&next)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrRuleNotFound
	}
	return next, err
}

// ListOrganizationIDs returns the distinct organizations that have active
// auto-reassignment rules, for the periodic sweep.
func (r *Repository) ListOrganizationIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT organization_id FROM auto_reassignment_rules WHERE is_active
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
