package reconciler

import (
	"context"
	"testing"
	"time"

	"leadflow_backend/internal/campaigns/domain"
	"leadflow_backend/internal/campaigns/repository"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	events     map[string]*domain.WebhookEvent // keyed by provider event id
	recipients map[string]*domain.Recipient    // keyed by provider message id
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:     make(map[string]*domain.WebhookEvent),
		recipients: make(map[string]*domain.Recipient),
	}
}

func (s *fakeStore) addSentRecipient(providerMessageID string) *domain.Recipient {
	now := time.Now().Add(-time.Minute)
	rec := &domain.Recipient{
		ID:                uuid.New(),
		CampaignID:        uuid.New(),
		DeliveryStatus:    domain.DeliverySent,
		SentAt:            &now,
		ProviderMessageID: &providerMessageID,
	}
	s.recipients[providerMessageID] = rec
	return rec
}

func (s *fakeStore) InsertWebhookEvent(_ context.Context, e domain.WebhookEvent) (uuid.UUID, bool, error) {
	if existing, ok := s.events[e.EventID]; ok {
		return existing.ID, false, nil
	}
	e.ID = uuid.New()
	s.events[e.EventID] = &e
	return e.ID, true, nil
}

func (s *fakeStore) MarkEventProcessed(_ context.Context, eventID uuid.UUID) error {
	for _, e := range s.events {
		if e.ID == eventID {
			e.Processed = true
		}
	}
	return nil
}

func (s *fakeStore) RecordLookupMiss(_ context.Context, eventID uuid.UUID, maxAttempts int) error {
	for _, e := range s.events {
		if e.ID == eventID {
			e.LookupAttempts++
			e.PermanentlyUnmatched = e.LookupAttempts >= maxAttempts
		}
	}
	return nil
}

func (s *fakeStore) ListUnmatched(_ context.Context, limit int) ([]domain.WebhookEvent, error) {
	var out []domain.WebhookEvent
	for _, e := range s.events {
		if !e.Processed && !e.PermanentlyUnmatched {
			out = append(out, *e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) GetByProviderMessageID(_ context.Context, pmid string) (domain.Recipient, error) {
	rec, ok := s.recipients[pmid]
	if !ok {
		return domain.Recipient{}, repository.ErrRecipientNotFound
	}
	return *rec, nil
}

func (s *fakeStore) SaveDelivery(_ context.Context, rec domain.Recipient) error {
	for pmid, stored := range s.recipients {
		if stored.ID == rec.ID {
			s.recipients[pmid] = &rec
		}
	}
	return nil
}

func newReconciler(store Store) *Reconciler {
	return New(store, logger.New("development"), 3, time.Minute)
}

func deliveredEvent(eventID, pmid string) domain.WebhookEvent {
	return domain.WebhookEvent{
		EventID:           eventID,
		EventType:         domain.EventDelivered,
		ProviderMessageID: pmid,
		OccurredAt:        time.Now(),
	}
}

func TestIngestAppliesDelivered(t *testing.T) {
	store := newFakeStore()
	store.addSentRecipient("pm-1")
	r := newReconciler(store)

	result, err := r.Ingest(context.Background(), deliveredEvent("ev-1", "pm-1"))
	if err != nil {
		t.Fatal(err)
	}
	if result != ResultApplied {
		t.Fatalf("result = %s, want applied", result)
	}

	rec := store.recipients["pm-1"]
	if rec.DeliveryStatus != domain.DeliveryDelivered || rec.DeliveredAt == nil {
		t.Fatalf("recipient not marked delivered: %+v", rec)
	}
	if !store.events["ev-1"].Processed {
		t.Fatal("event not marked processed")
	}
}

func TestIngestDeduplicatesByEventID(t *testing.T) {
	store := newFakeStore()
	store.addSentRecipient("pm-1")
	r := newReconciler(store)

	if _, err := r.Ingest(context.Background(), deliveredEvent("ev-1", "pm-1")); err != nil {
		t.Fatal(err)
	}
	result, err := r.Ingest(context.Background(), deliveredEvent("ev-1", "pm-1"))
	if err != nil {
		t.Fatal(err)
	}
	if result != ResultDuplicate {
		t.Fatalf("result = %s, want duplicate", result)
	}
}

func TestIngestReadBeforeDeliveredBackfills(t *testing.T) {
	store := newFakeStore()
	store.addSentRecipient("pm-1")
	r := newReconciler(store)

	read := deliveredEvent("ev-read", "pm-1")
	read.EventType = domain.EventRead
	if result, _ := r.Ingest(context.Background(), read); result != ResultApplied {
		t.Fatalf("read event not applied: %s", result)
	}

	rec := store.recipients["pm-1"]
	if rec.DeliveryStatus != domain.DeliveryRead || rec.DeliveredAt == nil {
		t.Fatalf("read should backfill delivered_at: %+v", rec)
	}

	// The late delivered event is a duplicate, not a regression.
	result, err := r.Ingest(context.Background(), deliveredEvent("ev-late", "pm-1"))
	if err != nil {
		t.Fatal(err)
	}
	if result != ResultDuplicate {
		t.Fatalf("late delivered = %s, want duplicate", result)
	}
	if store.recipients["pm-1"].DeliveryStatus != domain.DeliveryRead {
		t.Fatal("late delivered must not regress read state")
	}
}

func TestIngestBounceRecordsErrorCode(t *testing.T) {
	store := newFakeStore()
	store.addSentRecipient("pm-1")
	r := newReconciler(store)

	bounce := deliveredEvent("ev-b", "pm-1")
	bounce.EventType = domain.EventBounced
	bounce.Payload = map[string]any{"errorCode": "hard_bounce"}
	if result, _ := r.Ingest(context.Background(), bounce); result != ResultApplied {
		t.Fatalf("bounce not applied: %s", result)
	}

	rec := store.recipients["pm-1"]
	if rec.DeliveryStatus != domain.DeliveryBounced {
		t.Fatalf("status = %s, want bounced", rec.DeliveryStatus)
	}
	if rec.ErrorCode == nil || *rec.ErrorCode != "hard_bounce" {
		t.Fatalf("error code not recorded: %v", rec.ErrorCode)
	}
}

func TestIngestUnmatchedIsBufferedThenReplayed(t *testing.T) {
	store := newFakeStore()
	r := newReconciler(store)

	result, err := r.Ingest(context.Background(), deliveredEvent("ev-1", "pm-later"))
	if err != nil {
		t.Fatal(err)
	}
	if result != ResultUnmatched {
		t.Fatalf("result = %s, want unmatched", result)
	}
	if store.events["ev-1"].LookupAttempts != 1 {
		t.Fatalf("lookup attempts = %d, want 1", store.events["ev-1"].LookupAttempts)
	}

	// The send lands afterwards; replay applies the buffered event.
	store.addSentRecipient("pm-later")
	applied, err := r.ReplayUnmatched(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
	if store.recipients["pm-later"].DeliveryStatus != domain.DeliveryDelivered {
		t.Fatal("replayed event did not apply")
	}
}

func TestReplayParksEventAfterAttemptBudget(t *testing.T) {
	store := newFakeStore()
	r := newReconciler(store) // budget of 3

	if _, err := r.Ingest(context.Background(), deliveredEvent("ev-1", "pm-never")); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := r.ReplayUnmatched(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	e := store.events["ev-1"]
	if e.LookupAttempts != 3 {
		t.Fatalf("lookup attempts = %d, want 3", e.LookupAttempts)
	}
	if !e.PermanentlyUnmatched {
		t.Fatal("event should be permanently unmatched after the budget")
	}

	// Parked events leave the replay queue.
	events, _ := store.ListUnmatched(context.Background(), 10)
	if len(events) != 0 {
		t.Fatalf("parked event still listed: %v", events)
	}
}

func TestIngestRejectsIncompleteEvents(t *testing.T) {
	r := newReconciler(newFakeStore())

	if _, err := r.Ingest(context.Background(), domain.WebhookEvent{EventType: domain.EventDelivered}); err == nil {
		t.Fatal("expected an error for a payload without ids")
	}
}

func TestIngestUnknownEventTypeIgnored(t *testing.T) {
	store := newFakeStore()
	store.addSentRecipient("pm-1")
	r := newReconciler(store)

	odd := deliveredEvent("ev-odd", "pm-1")
	odd.EventType = "clicked"
	result, err := r.Ingest(context.Background(), odd)
	if err != nil {
		t.Fatal(err)
	}
	if result != ResultIgnored {
		t.Fatalf("result = %s, want ignored", result)
	}
	if !store.events["ev-odd"].Processed {
		t.Fatal("ignored events must still be marked processed")
	}
}
