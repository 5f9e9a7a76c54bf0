// Package tracker maintains per-agent workload and availability used by
// routing decisions.
package tracker

import (
	"context"
	"fmt"
	"sync"

	"leadflow_backend/internal/routing/domain"

	"github.com/google/uuid"
)

// AgentStore is the persistence port for agent load state.
type AgentStore interface {
	GetAgent(ctx context.Context, agentID uuid.UUID) (domain.Agent, error)
	// AdjustLoad changes the durable current_load by delta (floored at zero)
	// and stamps last_assignment_at when delta is positive.
	AdjustLoad(ctx context.Context, agentID uuid.UUID, delta int) error
}

// Tracker keeps an in-process view of each agent's load. All mutations for
// one agent are serialized under that agent's own lock so concurrent
// assignments never lose updates; different agents proceed independently.
type Tracker struct {
	store AgentStore

	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

type entry struct {
	mu    sync.Mutex
	agent domain.Agent
}

// New creates a tracker backed by the given store.
func New(store AgentStore) *Tracker {
	return &Tracker{
		store:   store,
		entries: make(map[uuid.UUID]*entry),
	}
}

// entryFor returns the tracked entry for an agent, hydrating from the store
// on first use.
func (t *Tracker) entryFor(ctx context.Context, agentID uuid.UUID) (*entry, error) {
	t.mu.Lock()
	e, ok := t.entries[agentID]
	if !ok {
		e = &entry{}
		t.entries[agentID] = e
	}
	t.mu.Unlock()

	e.mu.Lock()
	if e.agent.ID == uuid.Nil {
		agent, err := t.store.GetAgent(ctx, agentID)
		if err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("hydrate agent %s: %w", agentID, err)
		}
		e.agent = agent
	}
	e.mu.Unlock()
	return e, nil
}

// GetLoad returns the agent's current load, capacity and availability.
func (t *Tracker) GetLoad(ctx context.Context, agentID uuid.UUID) (current, capacity int, available bool, err error) {
	e, err := t.entryFor(ctx, agentID)
	if err != nil {
		return 0, 0, false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agent.CurrentLoad, e.agent.MaxCapacity, e.agent.IsAvailable, nil
}

// IsEligible reports whether the agent can receive another lead.
func (t *Tracker) IsEligible(ctx context.Context, agentID uuid.UUID) (bool, error) {
	current, capacity, available, err := t.GetLoad(ctx, agentID)
	if err != nil {
		return false, err
	}
	return available && current < capacity, nil
}

// RecordAssignment increments the agent's load, in memory and durably.
func (t *Tracker) RecordAssignment(ctx context.Context, agentID uuid.UUID) error {
	e, err := t.entryFor(ctx, agentID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := t.store.AdjustLoad(ctx, agentID, 1); err != nil {
		return fmt.Errorf("record assignment for %s: %w", agentID, err)
	}
	e.agent.CurrentLoad++
	return nil
}

// RecordCompletion decrements the agent's load, in memory and durably.
func (t *Tracker) RecordCompletion(ctx context.Context, agentID uuid.UUID) error {
	e, err := t.entryFor(ctx, agentID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := t.store.AdjustLoad(ctx, agentID, -1); err != nil {
		return fmt.Errorf("record completion for %s: %w", agentID, err)
	}
	if e.agent.CurrentLoad > 0 {
		e.agent.CurrentLoad--
	}
	return nil
}

// SetAvailability flips the agent's in-memory availability flag. The durable
// flag is owned by the agent management surface; this keeps the tracker's
// view current without a round trip.
func (t *Tracker) SetAvailability(ctx context.Context, agentID uuid.UUID, available bool) error {
	e, err := t.entryFor(ctx, agentID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.agent.IsAvailable = available
	return nil
}

// Refresh re-hydrates one agent from the store, discarding the cached view.
func (t *Tracker) Refresh(ctx context.Context, agentID uuid.UUID) error {
	agent, err := t.store.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}

	e, err := t.entryFor(ctx, agentID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.agent = agent
	return nil
}
