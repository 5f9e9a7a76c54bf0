// Package reconciler applies provider delivery webhooks to recipient state.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/campaigns/domain"
	"leadflow_backend/internal/campaigns/repository"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence port for webhook reconciliation.
type Store interface {
	InsertWebhookEvent(ctx context.Context, e domain.WebhookEvent) (id uuid.UUID, inserted bool, err error)
	MarkEventProcessed(ctx context.Context, eventID uuid.UUID) error
	RecordLookupMiss(ctx context.Context, eventID uuid.UUID, maxAttempts int) error
	ListUnmatched(ctx context.Context, limit int) ([]domain.WebhookEvent, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (domain.Recipient, error)
	SaveDelivery(ctx context.Context, rec domain.Recipient) error
}

// Result classifies what Ingest did with an event.
type Result string

const (
	// ResultApplied means the event changed the recipient's state.
	ResultApplied Result = "applied"
	// ResultDuplicate means the event (or its effect) was seen before.
	ResultDuplicate Result = "duplicate"
	// ResultUnmatched means no recipient carries the provider message id
	// yet; the event stays buffered for replay.
	ResultUnmatched Result = "unmatched"
	// ResultIgnored means the event type or transition does not apply.
	ResultIgnored Result = "ignored"
)

// Reconciler ingests delivery webhooks exactly once and replays the ones
// that arrived before their send was recorded.
type Reconciler struct {
	store       Store
	log         *logger.Logger
	maxAttempts int
	interval    time.Duration
	batchSize   int
}

// New creates a reconciler. maxAttempts bounds how often an unmatched event
// is retried before it is parked permanently.
func New(store Store, log *logger.Logger, maxAttempts int, interval time.Duration) *Reconciler {
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{store: store, log: log, maxAttempts: maxAttempts, interval: interval, batchSize: 100}
}

// Ingest stores and applies one provider event. Replays of the same event id
// are no-ops. Events whose provider message id matches no recipient yet are
// buffered and picked up by ReplayUnmatched.
func (r *Reconciler) Ingest(ctx context.Context, event domain.WebhookEvent) (Result, error) {
	if event.EventID == "" || event.ProviderMessageID == "" {
		return ResultIgnored, errors.New("event id and provider message id are required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	id, inserted, err := r.store.InsertWebhookEvent(ctx, event)
	if err != nil {
		return "", fmt.Errorf("store webhook event: %w", err)
	}
	if !inserted {
		r.log.WebhookEvent(event.EventType, event.ProviderMessageID, string(ResultDuplicate))
		return ResultDuplicate, nil
	}
	event.ID = id

	result, err := r.apply(ctx, event)
	if err != nil {
		return "", err
	}
	r.log.WebhookEvent(event.EventType, event.ProviderMessageID, string(result))
	return result, nil
}

// apply matches the event to its recipient and runs the state transition.
func (r *Reconciler) apply(ctx context.Context, event domain.WebhookEvent) (Result, error) {
	rec, err := r.store.GetByProviderMessageID(ctx, event.ProviderMessageID)
	if errors.Is(err, repository.ErrRecipientNotFound) {
		if err := r.store.RecordLookupMiss(ctx, event.ID, r.maxAttempts); err != nil {
			return "", fmt.Errorf("record lookup miss: %w", err)
		}
		return ResultUnmatched, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup recipient: %w", err)
	}

	outcome := r.transition(&rec, event)
	switch outcome {
	case domain.Applied:
		if err := r.store.SaveDelivery(ctx, rec); err != nil {
			return "", fmt.Errorf("save delivery: %w", err)
		}
		if err := r.store.MarkEventProcessed(ctx, event.ID); err != nil {
			return "", fmt.Errorf("mark event processed: %w", err)
		}
		return ResultApplied, nil
	case domain.Duplicate:
		if err := r.store.MarkEventProcessed(ctx, event.ID); err != nil {
			return "", fmt.Errorf("mark event processed: %w", err)
		}
		return ResultDuplicate, nil
	default:
		// Out-of-order or nonsensical for the current state. Mark it
		// processed so it does not replay forever.
		if err := r.store.MarkEventProcessed(ctx, event.ID); err != nil {
			return "", fmt.Errorf("mark event processed: %w", err)
		}
		return ResultIgnored, nil
	}
}

func (r *Reconciler) transition(rec *domain.Recipient, event domain.WebhookEvent) domain.Outcome {
	switch event.EventType {
	case domain.EventDelivered:
		return rec.MarkDelivered(event.OccurredAt)
	case domain.EventRead:
		return rec.MarkRead(event.OccurredAt)
	case domain.EventFailed:
		code, message := eventError(event)
		return rec.MarkFailed(event.OccurredAt, code, message, false, nil)
	case domain.EventBounced:
		code, _ := eventError(event)
		return rec.MarkBounced(event.OccurredAt, code)
	default:
		return domain.Invalid
	}
}

// eventError pulls the provider's error details out of the raw payload.
func eventError(event domain.WebhookEvent) (code, message string) {
	code = "provider_" + event.EventType
	if v, ok := event.Payload["errorCode"].(string); ok && v != "" {
		code = v
	}
	if v, ok := event.Payload["errorMessage"].(string); ok {
		message = v
	}
	return code, message
}

// ReplayUnmatched retries buffered events against recipients whose sends
// have since been recorded. Each miss consumes one lookup attempt; events
// out of attempts are parked as permanently unmatched.
func (r *Reconciler) ReplayUnmatched(ctx context.Context) (int, error) {
	events, err := r.store.ListUnmatched(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list unmatched: %w", err)
	}

	applied := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return applied, ctx.Err()
		}

		result, err := r.apply(ctx, event)
		if err != nil {
			r.log.Error("webhook replay failed", "event_id", event.EventID, "error", err)
			continue
		}
		if result == ResultApplied {
			applied++
		}
	}
	return applied, nil
}

// Run replays unmatched events on a fixed interval until the context is
// cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info("webhook reconciler started", "interval", r.interval.String())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("webhook reconciler stopped")
			return
		case <-ticker.C:
			applied, err := r.ReplayUnmatched(ctx)
			if err != nil {
				r.log.Error("webhook replay pass failed", "error", err)
				continue
			}
			if applied > 0 {
				r.log.Info("buffered webhooks applied", "count", applied)
			}
		}
	}
}
