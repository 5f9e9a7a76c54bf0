package tracker

import (
	"context"
	"sync"
	"testing"

	"leadflow_backend/internal/routing/domain"

	"github.com/google/uuid"
)

type fakeAgentStore struct {
	mu     sync.Mutex
	agents map[uuid.UUID]domain.Agent
	loads  map[uuid.UUID]int
}

func newFakeAgentStore(agents ...domain.Agent) *fakeAgentStore {
	s := &fakeAgentStore{
		agents: make(map[uuid.UUID]domain.Agent),
		loads:  make(map[uuid.UUID]int),
	}
	for _, a := range agents {
		s.agents[a.ID] = a
		s.loads[a.ID] = a.CurrentLoad
	}
	return s
}

func (s *fakeAgentStore) GetAgent(_ context.Context, id uuid.UUID) (domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.agents[id]
	a.CurrentLoad = s.loads[id]
	return a, nil
}

func (s *fakeAgentStore) AdjustLoad(_ context.Context, id uuid.UUID, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.loads[id] + delta
	if next < 0 {
		next = 0
	}
	s.loads[id] = next
	return nil
}

func TestConcurrentAssignmentsDoNotLoseUpdates(t *testing.T) {
	agent := domain.Agent{ID: uuid.New(), IsAvailable: true, MaxCapacity: 1000}
	store := newFakeAgentStore(agent)
	tr := New(store)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tr.RecordAssignment(context.Background(), agent.ID); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	current, _, _, err := tr.GetLoad(context.Background(), agent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if current != n {
		t.Fatalf("expected load %d after %d concurrent assignments, got %d", n, n, current)
	}
	if store.loads[agent.ID] != n {
		t.Fatalf("durable load diverged: %d", store.loads[agent.ID])
	}
}

func TestIsEligibleRespectsCapacityAndAvailability(t *testing.T) {
	full := domain.Agent{ID: uuid.New(), IsAvailable: true, MaxCapacity: 2, CurrentLoad: 2}
	away := domain.Agent{ID: uuid.New(), IsAvailable: false, MaxCapacity: 10}
	open := domain.Agent{ID: uuid.New(), IsAvailable: true, MaxCapacity: 10, CurrentLoad: 3}
	tr := New(newFakeAgentStore(full, away, open))

	ctx := context.Background()
	if ok, _ := tr.IsEligible(ctx, full.ID); ok {
		t.Fatal("agent at capacity must not be eligible")
	}
	if ok, _ := tr.IsEligible(ctx, away.ID); ok {
		t.Fatal("unavailable agent must not be eligible")
	}
	if ok, _ := tr.IsEligible(ctx, open.ID); !ok {
		t.Fatal("available agent under capacity must be eligible")
	}
}

func TestCompletionFreesCapacity(t *testing.T) {
	agent := domain.Agent{ID: uuid.New(), IsAvailable: true, MaxCapacity: 1, CurrentLoad: 1}
	tr := New(newFakeAgentStore(agent))
	ctx := context.Background()

	if ok, _ := tr.IsEligible(ctx, agent.ID); ok {
		t.Fatal("agent should start at capacity")
	}
	if err := tr.RecordCompletion(ctx, agent.ID); err != nil {
		t.Fatal(err)
	}
	if ok, _ := tr.IsEligible(ctx, agent.ID); !ok {
		t.Fatal("completion should free a slot")
	}
}

func TestCompletionNeverGoesNegative(t *testing.T) {
	agent := domain.Agent{ID: uuid.New(), IsAvailable: true, MaxCapacity: 5}
	tr := New(newFakeAgentStore(agent))
	ctx := context.Background()

	if err := tr.RecordCompletion(ctx, agent.ID); err != nil {
		t.Fatal(err)
	}
	current, _, _, err := tr.GetLoad(ctx, agent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if current != 0 {
		t.Fatalf("load should floor at zero, got %d", current)
	}
}
