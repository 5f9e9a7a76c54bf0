// Package ledger records every assignment and reassignment as an immutable
// log entry and applies the lead-side effects as one atomic unit.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/routing/domain"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// ErrNothingToUndo is returned when the lead's latest log entry is not
// undoable (already undone, or superseded).
var ErrNothingToUndo = errors.New("nothing to undo")

// AssignmentParams describes one assignment write.
type AssignmentParams struct {
	LeadID      uuid.UUID
	OrgID       uuid.UUID
	FromAgentID *uuid.UUID
	ToAgentID   uuid.UUID
	Method      domain.Method
	RuleID      *uuid.UUID
	Reason      *string
}

// Store is the persistence port. ApplyAssignment and RevertAssignment are
// atomic: the lead row, the new log entry and the previous entry's undo
// flag change in a single transaction.
type Store interface {
	GetLead(ctx context.Context, leadID uuid.UUID) (domain.Lead, error)
	ApplyAssignment(ctx context.Context, p AssignmentParams) (uuid.UUID, error)
	// LatestEntry returns the most recent log entry for the lead, or nil.
	LatestEntry(ctx context.Context, leadID uuid.UUID) (*domain.AssignmentLogEntry, error)
	ListEntries(ctx context.Context, leadID uuid.UUID) ([]domain.AssignmentLogEntry, error)
	RevertAssignment(ctx context.Context, entry domain.AssignmentLogEntry, undoneBy *uuid.UUID) error
}

// LoadRecorder mirrors assignment changes into the agent load tracker.
type LoadRecorder interface {
	RecordAssignment(ctx context.Context, agentID uuid.UUID) error
	RecordCompletion(ctx context.Context, agentID uuid.UUID) error
}

// Service is the assignment ledger.
type Service struct {
	store Store
	loads LoadRecorder
	bus   events.Bus
	log   *logger.Logger
}

// New creates a ledger service.
func New(store Store, loads LoadRecorder, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, loads: loads, bus: bus, log: log}
}

// Assign moves the lead to toAgent and records the log entry. Returns the
// new log entry id.
func (s *Service) Assign(ctx context.Context, leadID, toAgentID uuid.UUID, method domain.Method, ruleID *uuid.UUID, reason *string) (uuid.UUID, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("get lead: %w", err)
	}

	params := AssignmentParams{
		LeadID:      lead.ID,
		OrgID:       lead.OrganizationID,
		FromAgentID: lead.AssignedAgentID,
		ToAgentID:   toAgentID,
		Method:      method,
		RuleID:      ruleID,
		Reason:      reason,
	}

	entryID, err := s.store.ApplyAssignment(ctx, params)
	if err != nil {
		return uuid.Nil, fmt.Errorf("apply assignment: %w", err)
	}

	s.adjustLoads(ctx, lead.AssignedAgentID, &toAgentID)

	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadAssigned{
			BaseEvent:      events.NewBaseEvent(),
			LeadID:         lead.ID,
			OrganizationID: lead.OrganizationID,
			PreviousAgent:  lead.AssignedAgentID,
			NewAgent:       toAgentID,
			Method:         string(method),
			RuleID:         ruleID,
			LogEntryID:     entryID,
		})
	}

	s.log.Assignment(lead.ID.String(), toAgentID.String(), string(method))
	return entryID, nil
}

// BulkAssign applies Assign per lead and returns the success count.
// Individual failures are logged and skipped, never aborting the batch.
func (s *Service) BulkAssign(ctx context.Context, leadIDs []uuid.UUID, agentID uuid.UUID) (int, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	succeeded := 0
	for _, leadID := range leadIDs {
		if _, err := s.Assign(ctx, leadID, agentID, domain.MethodManual, nil, nil); err != nil {
			s.log.Warn("bulk assign skipped lead", "lead_id", leadID, "error", err)
			continue
		}
		succeeded++
	}
	return succeeded, nil
}

// Undo reverts the lead's most recent assignment, restoring the previous
// agent. Only the latest entry can be undone, exactly once; the revert
// itself is not further undoable.
func (s *Service) Undo(ctx context.Context, leadID uuid.UUID, undoneBy *uuid.UUID) error {
	entry, err := s.store.LatestEntry(ctx, leadID)
	if err != nil {
		return fmt.Errorf("latest entry: %w", err)
	}
	if entry == nil || !entry.CanUndo || entry.UndoneAt != nil {
		return ErrNothingToUndo
	}

	if err := s.store.RevertAssignment(ctx, *entry, undoneBy); err != nil {
		return fmt.Errorf("revert assignment: %w", err)
	}

	s.adjustLoads(ctx, entry.ToAgentID, entry.FromAgentID)

	if s.bus != nil {
		s.bus.Publish(ctx, events.AssignmentUndone{
			BaseEvent:      events.NewBaseEvent(),
			LeadID:         leadID,
			OrganizationID: entry.OrganizationID,
			RestoredAgent:  entry.FromAgentID,
			LogEntryID:     entry.ID,
		})
	}
	return nil
}

// History returns the lead's assignment log, newest first.
func (s *Service) History(ctx context.Context, leadID uuid.UUID) ([]domain.AssignmentLogEntry, error) {
	return s.store.ListEntries(ctx, leadID)
}

// adjustLoads mirrors the ownership change into the tracker. Tracker errors
// are logged, not propagated: the durable assignment already committed and
// the tracker re-hydrates from the durable load on demand.
func (s *Service) adjustLoads(ctx context.Context, from, to *uuid.UUID) {
	if from != nil && (to == nil || *from != *to) {
		if err := s.loads.RecordCompletion(ctx, *from); err != nil {
			s.log.Warn("load tracker completion failed", "agent_id", *from, "error", err)
		}
	}
	if to != nil && (from == nil || *from != *to) {
		if err := s.loads.RecordAssignment(ctx, *to); err != nil {
			s.log.Warn("load tracker assignment failed", "agent_id", *to, "error", err)
		}
	}
}
