package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	base := 30 * time.Second
	max := time.Hour

	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 30 * time.Second},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{5, 16 * time.Minute},
		{7, time.Hour},  // 64m capped
		{20, time.Hour}, // far past the cap
	}
	for _, tc := range cases {
		if got := Backoff(base, max, tc.retryCount); got != tc.want {
			t.Fatalf("retry %d: got %s, want %s", tc.retryCount, got, tc.want)
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	if got := Backoff(0, 0, 0); got != 30*time.Second {
		t.Fatalf("zero config should fall back to 30s, got %s", got)
	}
}

type fakeStore struct {
	active     []uuid.UUID
	maxRetries map[uuid.UUID]int
	requeued   map[uuid.UUID]int
	failFor    map[uuid.UUID]bool
}

func (s *fakeStore) ListActiveCampaignIDs(context.Context) ([]uuid.UUID, error) {
	return s.active, nil
}

func (s *fakeStore) GetCampaignMaxRetries(_ context.Context, id uuid.UUID) (int, error) {
	if s.failFor[id] {
		return 0, errors.New("campaign lookup failed")
	}
	return s.maxRetries[id], nil
}

func (s *fakeStore) RequeueRetryable(_ context.Context, id uuid.UUID, _ int, _ time.Time) (int, error) {
	return s.requeued[id], nil
}

func TestRunRetryPassCoversActiveCampaigns(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	store := &fakeStore{
		active:     []uuid.UUID{a, b},
		maxRetries: map[uuid.UUID]int{a: 3, b: 3},
		requeued:   map[uuid.UUID]int{a: 2, b: 1},
		failFor:    map[uuid.UUID]bool{},
	}

	coord := New(store, logger.New("development"), time.Minute)
	total, err := coord.RunRetryPass(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("expected 3 requeued, got %d", total)
	}
}

func TestRunRetryPassContinuesPastFailures(t *testing.T) {
	broken, ok := uuid.New(), uuid.New()
	store := &fakeStore{
		active:     []uuid.UUID{broken, ok},
		maxRetries: map[uuid.UUID]int{ok: 3},
		requeued:   map[uuid.UUID]int{ok: 4},
		failFor:    map[uuid.UUID]bool{broken: true},
	}

	coord := New(store, logger.New("development"), time.Minute)
	total, err := coord.RunRetryPass(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 {
		t.Fatalf("expected the healthy campaign's 4 requeues, got %d", total)
	}
}
