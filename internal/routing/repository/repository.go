// Package repository provides data access for the routing bounded context.
package repository

import (
	"context"
	"errors"
	"fmt"

	"leadflow_backend/internal/routing/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrLeadNotFound is returned when a lead id does not exist.
var ErrLeadNotFound = errors.New("lead not found")

// ErrAgentNotFound is returned when an agent id does not exist.
var ErrAgentNotFound = errors.New("agent not found")

// Repository provides pgx-backed persistence for leads, agents, rules and
// the assignment log.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a routing repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetAgent loads a single agent.
func (r *Repository) GetAgent(ctx context.Context, agentID uuid.UUID) (domain.Agent, error) {
	var a domain.Agent
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, name, is_available, max_capacity, current_load,
		       conversion_rate, avg_response_seconds, last_assignment_at
		FROM agents
		WHERE id = $1
	`, agentID).Scan(
		&a.ID, &a.OrganizationID, &a.Name, &a.IsAvailable, &a.MaxCapacity, &a.CurrentLoad,
		&a.ConversionRate, &a.AvgResponseSeconds, &a.LastAssignmentAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Agent{}, ErrAgentNotFound
	}
	return a, err
}

// AdjustLoad changes the agent's durable load by delta, floored at zero.
// A positive delta also stamps last_assignment_at.
func (r *Repository) AdjustLoad(ctx context.Context, agentID uuid.UUID, delta int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE agents
		SET current_load = GREATEST(current_load + $2, 0),
		    last_assignment_at = CASE WHEN $2 > 0 THEN now() ELSE last_assignment_at END,
		    updated_at = now()
		WHERE id = $1
	`, agentID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// CreateAgent inserts a new agent.
func (r *Repository) CreateAgent(ctx context.Context, a domain.Agent) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO agents (organization_id, name, is_available, max_capacity)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, a.OrganizationID, a.Name, a.IsAvailable, a.MaxCapacity).Scan(&id)
	return id, err
}

// SetAgentAvailability flips the durable availability flag.
func (r *Repository) SetAgentAvailability(ctx context.Context, agentID uuid.UUID, available bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE agents SET is_available = $2, updated_at = now() WHERE id = $1
	`, agentID, available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// GetLead loads a single lead.
func (r *Repository) GetLead(ctx context.Context, leadID uuid.UUID) (domain.Lead, error) {
	var l domain.Lead
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, name, email, phone, source, stage, attributes,
		       assigned_agent_id, previous_agent_id, assignment_priority,
		       reassignment_due_at, last_contacted_at, created_at, updated_at
		FROM leads
		WHERE id = $1
	`, leadID).Scan(
		&l.ID, &l.OrganizationID, &l.Name, &l.Email, &l.Phone, &l.Source, &l.Stage,
		&l.Attributes, &l.AssignedAgentID, &l.PreviousAgentID, &l.AssignmentPriority,
		&l.ReassignmentDueAt, &l.LastContactedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrLeadNotFound
	}
	return l, err
}

// CreateLead inserts a new lead and returns its id.
func (r *Repository) CreateLead(ctx context.Context, l domain.Lead) (uuid.UUID, error) {
	attrs := l.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO leads (organization_id, name, email, phone, source, stage, attributes, assignment_priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, l.OrganizationID, l.Name, l.Email, l.Phone, l.Source, l.Stage, attrs, l.AssignmentPriority).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert lead: %w", err)
	}
	return id, nil
}

// TouchLeadContact stamps last_contacted_at, used by external collaborators
// when an agent reaches out.
func (r *Repository) TouchLeadContact(ctx context.Context, leadID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET last_contacted_at = now(), updated_at = now() WHERE id = $1
	`, leadID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}
