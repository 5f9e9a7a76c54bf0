package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadflow_backend/internal/routing/domain"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	leads   map[uuid.UUID]*domain.Lead
	entries map[uuid.UUID][]*domain.AssignmentLogEntry
}

func newFakeStore(leads ...*domain.Lead) *fakeStore {
	s := &fakeStore{
		leads:   make(map[uuid.UUID]*domain.Lead),
		entries: make(map[uuid.UUID][]*domain.AssignmentLogEntry),
	}
	for _, l := range leads {
		s.leads[l.ID] = l
	}
	return s
}

func (s *fakeStore) GetLead(_ context.Context, leadID uuid.UUID) (domain.Lead, error) {
	l, ok := s.leads[leadID]
	if !ok {
		return domain.Lead{}, errors.New("lead not found")
	}
	return *l, nil
}

func (s *fakeStore) ApplyAssignment(_ context.Context, p AssignmentParams) (uuid.UUID, error) {
	lead := s.leads[p.LeadID]
	lead.PreviousAgentID = lead.AssignedAgentID
	to := p.ToAgentID
	lead.AssignedAgentID = &to
	lead.ReassignmentDueAt = nil

	for _, e := range s.entries[p.LeadID] {
		e.CanUndo = false
	}

	entry := &domain.AssignmentLogEntry{
		ID:             uuid.New(),
		OrganizationID: p.OrgID,
		LeadID:         p.LeadID,
		FromAgentID:    p.FromAgentID,
		ToAgentID:      &to,
		Method:         p.Method,
		RuleID:         p.RuleID,
		Reason:         p.Reason,
		CanUndo:        true,
		CreatedAt:      time.Now(),
	}
	s.entries[p.LeadID] = append(s.entries[p.LeadID], entry)
	return entry.ID, nil
}

func (s *fakeStore) LatestEntry(_ context.Context, leadID uuid.UUID) (*domain.AssignmentLogEntry, error) {
	entries := s.entries[leadID]
	if len(entries) == 0 {
		return nil, nil
	}
	copied := *entries[len(entries)-1]
	return &copied, nil
}

func (s *fakeStore) ListEntries(_ context.Context, leadID uuid.UUID) ([]domain.AssignmentLogEntry, error) {
	var out []domain.AssignmentLogEntry
	for i := len(s.entries[leadID]) - 1; i >= 0; i-- {
		out = append(out, *s.entries[leadID][i])
	}
	return out, nil
}

func (s *fakeStore) RevertAssignment(_ context.Context, entry domain.AssignmentLogEntry, _ *uuid.UUID) error {
	lead := s.leads[entry.LeadID]
	lead.AssignedAgentID = entry.FromAgentID
	for _, e := range s.entries[entry.LeadID] {
		if e.ID == entry.ID {
			now := time.Now()
			e.CanUndo = false
			e.UndoneAt = &now
		}
	}
	return nil
}

type fakeLoads struct {
	assigned  map[uuid.UUID]int
	completed map[uuid.UUID]int
	failFor   map[uuid.UUID]bool
}

func newFakeLoads() *fakeLoads {
	return &fakeLoads{
		assigned:  make(map[uuid.UUID]int),
		completed: make(map[uuid.UUID]int),
		failFor:   make(map[uuid.UUID]bool),
	}
}

func (f *fakeLoads) RecordAssignment(_ context.Context, agentID uuid.UUID) error {
	if f.failFor[agentID] {
		return errors.New("tracker unavailable")
	}
	f.assigned[agentID]++
	return nil
}

func (f *fakeLoads) RecordCompletion(_ context.Context, agentID uuid.UUID) error {
	f.completed[agentID]++
	return nil
}

func newTestService(store *fakeStore, loads *fakeLoads) *Service {
	return New(store, loads, nil, logger.New("development"))
}

func TestAssignRecordsEntryAndAdjustsLoads(t *testing.T) {
	agentA := uuid.New()
	agentB := uuid.New()
	lead := &domain.Lead{ID: uuid.New(), OrganizationID: uuid.New(), AssignedAgentID: &agentA}
	store := newFakeStore(lead)
	loads := newFakeLoads()
	svc := newTestService(store, loads)

	entryID, err := svc.Assign(context.Background(), lead.ID, agentB, domain.MethodManual, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if entryID == uuid.Nil {
		t.Fatal("expected a log entry id")
	}
	if lead.AssignedAgentID == nil || *lead.AssignedAgentID != agentB {
		t.Fatal("lead should now belong to agent B")
	}
	if lead.PreviousAgentID == nil || *lead.PreviousAgentID != agentA {
		t.Fatal("previous agent should be recorded on the lead")
	}
	if loads.completed[agentA] != 1 || loads.assigned[agentB] != 1 {
		t.Fatal("loads should move from the old agent to the new one")
	}
}

func TestUndoRestoresPreviousAgentOnce(t *testing.T) {
	agentA := uuid.New()
	agentB := uuid.New()
	lead := &domain.Lead{ID: uuid.New(), OrganizationID: uuid.New()}
	store := newFakeStore(lead)
	svc := newTestService(store, newFakeLoads())
	ctx := context.Background()

	if _, err := svc.Assign(ctx, lead.ID, agentA, domain.MethodManual, nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Assign(ctx, lead.ID, agentB, domain.MethodManual, nil, nil); err != nil {
		t.Fatal(err)
	}

	if err := svc.Undo(ctx, lead.ID, nil); err != nil {
		t.Fatal(err)
	}
	if lead.AssignedAgentID == nil || *lead.AssignedAgentID != agentA {
		t.Fatal("undo should restore agent A")
	}

	// The revert itself is not further undoable.
	if err := svc.Undo(ctx, lead.ID, nil); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("second undo should report nothing to undo, got %v", err)
	}
}

func TestUndoAfterThirdAssignmentOnlyRevertsLatest(t *testing.T) {
	agents := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	lead := &domain.Lead{ID: uuid.New(), OrganizationID: uuid.New()}
	store := newFakeStore(lead)
	svc := newTestService(store, newFakeLoads())
	ctx := context.Background()

	for _, a := range agents {
		if _, err := svc.Assign(ctx, lead.ID, a, domain.MethodManual, nil, nil); err != nil {
			t.Fatal(err)
		}
	}

	if err := svc.Undo(ctx, lead.ID, nil); err != nil {
		t.Fatal(err)
	}
	if lead.AssignedAgentID == nil || *lead.AssignedAgentID != agents[1] {
		t.Fatal("undo should restore the second agent, not the first")
	}
}

func TestUndoWithNoHistory(t *testing.T) {
	lead := &domain.Lead{ID: uuid.New(), OrganizationID: uuid.New()}
	svc := newTestService(newFakeStore(lead), newFakeLoads())

	if err := svc.Undo(context.Background(), lead.ID, nil); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("expected ErrNothingToUndo, got %v", err)
	}
}

func TestBulkAssignContinuesPastFailures(t *testing.T) {
	agent := uuid.New()
	leadA := &domain.Lead{ID: uuid.New(), OrganizationID: uuid.New()}
	leadC := &domain.Lead{ID: uuid.New(), OrganizationID: uuid.New()}
	store := newFakeStore(leadA, leadC)
	svc := newTestService(store, newFakeLoads())

	missing := uuid.New() // not in the store
	count, err := svc.BulkAssign(context.Background(), []uuid.UUID{leadA.ID, missing, leadC.ID}, agent)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected 2 successes, got %d", count)
	}
	if leadA.AssignedAgentID == nil || leadC.AssignedAgentID == nil {
		t.Fatal("surviving leads should be assigned")
	}
}

func TestTrackerFailureDoesNotFailAssignment(t *testing.T) {
	agent := uuid.New()
	lead := &domain.Lead{ID: uuid.New(), OrganizationID: uuid.New()}
	loads := newFakeLoads()
	loads.failFor[agent] = true
	svc := newTestService(newFakeStore(lead), loads)

	if _, err := svc.Assign(context.Background(), lead.ID, agent, domain.MethodManual, nil, nil); err != nil {
		t.Fatal("assignment already committed; tracker errors must not surface")
	}
}
