// Package service orchestrates lead routing: rule evaluation, the default
// pool fallback, and writes through the assignment ledger.
package service

import (
	"context"
	"errors"

	"leadflow_backend/internal/routing/domain"
	"leadflow_backend/internal/routing/engine"
	"leadflow_backend/internal/routing/ledger"
	"leadflow_backend/internal/routing/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"

	"github.com/google/uuid"
)

// LeadStore is the persistence port for leads.
type LeadStore interface {
	GetLead(ctx context.Context, leadID uuid.UUID) (domain.Lead, error)
	CreateLead(ctx context.Context, l domain.Lead) (uuid.UUID, error)
}

// Evaluator picks an agent for a lead via the rule engine.
type Evaluator interface {
	Evaluate(ctx context.Context, lead domain.Lead) (engine.Result, error)
	ResolvePool(ctx context.Context, poolID uuid.UUID) (uuid.UUID, bool, error)
}

// Assigner writes assignments through the ledger.
type Assigner interface {
	Assign(ctx context.Context, leadID, toAgentID uuid.UUID, method domain.Method, ruleID *uuid.UUID, reason *string) (uuid.UUID, error)
	BulkAssign(ctx context.Context, leadIDs []uuid.UUID, agentID uuid.UUID) (int, error)
	Undo(ctx context.Context, leadID uuid.UUID, undoneBy *uuid.UUID) error
	History(ctx context.Context, leadID uuid.UUID) ([]domain.AssignmentLogEntry, error)
}

// RouteResult describes the outcome of routing one lead.
type RouteResult struct {
	LeadID   uuid.UUID  `json:"leadId"`
	Assigned bool       `json:"assigned"`
	AgentID  *uuid.UUID `json:"agentId,omitempty"`
	RuleID   *uuid.UUID `json:"ruleId,omitempty"`
	Method   string     `json:"method,omitempty"`
	EntryID  *uuid.UUID `json:"logEntryId,omitempty"`
}

// CreateLeadParams describes a new lead.
type CreateLeadParams struct {
	OrganizationID uuid.UUID
	Name           string
	Email          string
	Phone          string
	Source         string
	Stage          string
	Priority       int
	Attributes     map[string]any
}

// Router routes leads to agents.
type Router struct {
	leads       LeadStore
	engine      Evaluator
	ledger      Assigner
	defaultPool *uuid.UUID
	log         *logger.Logger
}

// NewRouter creates the routing service. defaultPoolID is the raw configured
// value; empty or malformed disables the fallback.
func NewRouter(leads LeadStore, eval Evaluator, assigner Assigner, defaultPoolID string, log *logger.Logger) *Router {
	var pool *uuid.UUID
	if defaultPoolID != "" {
		if id, err := uuid.Parse(defaultPoolID); err == nil {
			pool = &id
		} else {
			log.Warn("invalid default pool id, fallback disabled", "value", defaultPoolID)
		}
	}
	return &Router{leads: leads, engine: eval, ledger: assigner, defaultPool: pool, log: log}
}

// CreateAndRoute creates a lead and immediately routes it. The lead is
// created even when routing finds no agent; it stays unassigned.
func (r *Router) CreateAndRoute(ctx context.Context, p CreateLeadParams) (RouteResult, error) {
	p.Phone = phone.NormalizeE164(p.Phone)

	leadID, err := r.leads.CreateLead(ctx, domain.Lead{
		OrganizationID:     p.OrganizationID,
		Name:               p.Name,
		Email:              p.Email,
		Phone:              p.Phone,
		Source:             p.Source,
		Stage:              p.Stage,
		Attributes:         p.Attributes,
		AssignmentPriority: p.Priority,
	})
	if err != nil {
		return RouteResult{}, apperr.Wrap(apperr.KindInternal, "failed to create lead", err)
	}

	return r.Route(ctx, leadID)
}

// Route evaluates the rules for an existing lead and applies the winning
// assignment. No match falls back to the default pool when configured;
// otherwise the lead stays unassigned and the result reports that.
func (r *Router) Route(ctx context.Context, leadID uuid.UUID) (RouteResult, error) {
	lead, err := r.leads.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrLeadNotFound) {
			return RouteResult{}, apperr.NotFound("lead not found")
		}
		return RouteResult{}, apperr.Wrap(apperr.KindInternal, "failed to load lead", err)
	}

	result, err := r.engine.Evaluate(ctx, lead)
	switch {
	case err == nil:
		return r.apply(ctx, lead.ID, result.AgentID, result.Method, result.RuleID)

	case errors.Is(err, engine.ErrNoMatch):
		return r.fallback(ctx, lead.ID)

	default:
		return RouteResult{}, apperr.Wrap(apperr.KindInternal, "rule evaluation failed", err)
	}
}

// fallback tries the organization-wide default pool.
func (r *Router) fallback(ctx context.Context, leadID uuid.UUID) (RouteResult, error) {
	if r.defaultPool == nil {
		r.log.Info("no rule matched and no default pool, lead stays unassigned", "lead_id", leadID)
		return RouteResult{LeadID: leadID, Assigned: false}, nil
	}

	agentID, ok, err := r.engine.ResolvePool(ctx, *r.defaultPool)
	if err != nil {
		return RouteResult{}, apperr.Wrap(apperr.KindInternal, "default pool resolution failed", err)
	}
	if !ok {
		r.log.Info("default pool has no eligible agent, lead stays unassigned", "lead_id", leadID)
		return RouteResult{LeadID: leadID, Assigned: false}, nil
	}

	return r.apply(ctx, leadID, agentID, domain.MethodRoundRobin, nil)
}

func (r *Router) apply(ctx context.Context, leadID, agentID uuid.UUID, method domain.Method, ruleID *uuid.UUID) (RouteResult, error) {
	entryID, err := r.ledger.Assign(ctx, leadID, agentID, method, ruleID, nil)
	if err != nil {
		return RouteResult{}, apperr.Wrap(apperr.KindInternal, "failed to apply assignment", err)
	}

	agent := agentID
	return RouteResult{
		LeadID:   leadID,
		Assigned: true,
		AgentID:  &agent,
		RuleID:   ruleID,
		Method:   string(method),
		EntryID:  &entryID,
	}, nil
}

// AssignManually moves a lead to an explicit agent, bypassing the rules.
func (r *Router) AssignManually(ctx context.Context, leadID, agentID uuid.UUID, reason *string) (RouteResult, error) {
	entryID, err := r.ledger.Assign(ctx, leadID, agentID, domain.MethodManual, nil, reason)
	if err != nil {
		if errors.Is(err, repository.ErrLeadNotFound) {
			return RouteResult{}, apperr.NotFound("lead not found")
		}
		if errors.Is(err, repository.ErrAgentNotFound) {
			return RouteResult{}, apperr.NotFound("agent not found")
		}
		return RouteResult{}, apperr.Wrap(apperr.KindInternal, "failed to assign lead", err)
	}

	agent := agentID
	return RouteResult{
		LeadID:   leadID,
		Assigned: true,
		AgentID:  &agent,
		Method:   string(domain.MethodManual),
		EntryID:  &entryID,
	}, nil
}

// BulkAssign moves many leads to one agent and returns the success count.
func (r *Router) BulkAssign(ctx context.Context, leadIDs []uuid.UUID, agentID uuid.UUID) (int, error) {
	count, err := r.ledger.BulkAssign(ctx, leadIDs, agentID)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "bulk assignment failed", err)
	}
	return count, nil
}

// Undo reverts the lead's latest assignment.
func (r *Router) Undo(ctx context.Context, leadID uuid.UUID, undoneBy *uuid.UUID) error {
	err := r.ledger.Undo(ctx, leadID, undoneBy)
	if errors.Is(err, ledger.ErrNothingToUndo) {
		return apperr.Conflict("nothing to undo for this lead")
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "undo failed", err)
	}
	return nil
}

// History returns the lead's assignment log, newest first.
func (r *Router) History(ctx context.Context, leadID uuid.UUID) ([]domain.AssignmentLogEntry, error) {
	entries, err := r.ledger.History(ctx, leadID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load assignment history", err)
	}
	if entries == nil {
		entries = []domain.AssignmentLogEntry{}
	}
	return entries, nil
}
