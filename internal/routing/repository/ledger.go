package repository

import (
	"context"
	"errors"

	"leadflow_backend/internal/routing/domain"
	"leadflow_backend/internal/routing/ledger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const logColumns = `id, organization_id, lead_id, from_agent_id, to_agent_id, method,
	rule_id, reason, can_undo, undone_at, undone_by, created_at`

func scanLogEntry(row pgx.Row) (domain.AssignmentLogEntry, error) {
	var e domain.AssignmentLogEntry
	var method string
	err := row.Scan(
		&e.ID, &e.OrganizationID, &e.LeadID, &e.FromAgentID, &e.ToAgentID, &method,
		&e.RuleID, &e.Reason, &e.CanUndo, &e.UndoneAt, &e.UndoneBy, &e.CreatedAt,
	)
	e.Method = domain.Method(method)
	return e, err
}

// ApplyAssignment applies one assignment as a single transaction: the lead
// row moves to the new agent, any previously undoable entry loses its flag,
// and a new undoable entry is appended.
func (r *Repository) ApplyAssignment(ctx context.Context, p ledger.AssignmentParams) (uuid.UUID, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return uuid.Nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE leads
		SET previous_agent_id = assigned_agent_id,
		    assigned_agent_id = $2,
		    reassignment_due_at = NULL,
		    updated_at = now()
		WHERE id = $1
	`, p.LeadID, p.ToAgentID)
	if err != nil {
		return uuid.Nil, err
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, ErrLeadNotFound
	}

	// At most one undoable entry per lead.
	if _, err := tx.Exec(ctx, `
		UPDATE assignment_log SET can_undo = false WHERE lead_id = $1 AND can_undo
	`, p.LeadID); err != nil {
		return uuid.Nil, err
	}

	var entryID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO assignment_log
			(organization_id, lead_id, from_agent_id, to_agent_id, method, rule_id, reason, can_undo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true)
		RETURNING id
	`, p.OrgID, p.LeadID, p.FromAgentID, p.ToAgentID, string(p.Method), p.RuleID, p.Reason).Scan(&entryID)
	if err != nil {
		return uuid.Nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, err
	}
	return entryID, nil
}

// LatestEntry returns the most recent log entry for the lead, or nil.
func (r *Repository) LatestEntry(ctx context.Context, leadID uuid.UUID) (*domain.AssignmentLogEntry, error) {
	entry, err := scanLogEntry(r.pool.QueryRow(ctx, `
		SELECT `+logColumns+`
		FROM assignment_log
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, leadID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListEntries returns the lead's assignment history, newest first. History
// rows are append-only; this is the full audit trail including undone rows.
func (r *Repository) ListEntries(ctx context.Context, leadID uuid.UUID) ([]domain.AssignmentLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+logColumns+`
		FROM assignment_log
		WHERE lead_id = $1
		ORDER BY created_at DESC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AssignmentLogEntry
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// RevertAssignment undoes one log entry transactionally: the entry is
// stamped undone (guarding against a concurrent double-undo) and the lead
// returns to the entry's from-agent.
func (r *Repository) RevertAssignment(ctx context.Context, entry domain.AssignmentLogEntry, undoneBy *uuid.UUID) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE assignment_log
		SET can_undo = false, undone_at = now(), undone_by = $2
		WHERE id = $1 AND can_undo AND undone_at IS NULL
	`, entry.ID, undoneBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNothingToUndo
	}

	if _, err := tx.Exec(ctx, `
		UPDATE leads
		SET assigned_agent_id = $2, previous_agent_id = $3, updated_at = now()
		WHERE id = $1
	`, entry.LeadID, entry.FromAgentID, entry.ToAgentID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
