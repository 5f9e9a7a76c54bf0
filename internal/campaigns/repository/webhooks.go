package repository

import (
	"context"

	"leadflow_backend/internal/campaigns/domain"

	"github.com/google/uuid"
)

// InsertWebhookEvent stores a normalized provider event. The unique index on
// event_id makes replayed webhooks no-ops; inserted reports whether this
// call stored a new row.
func (r *Repository) InsertWebhookEvent(ctx context.Context, e domain.WebhookEvent) (id uuid.UUID, inserted bool, err error) {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	rows, err := r.pool.Query(ctx, `
		INSERT INTO webhook_events (event_id, event_type, provider_message_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING id
	`, e.EventID, e.EventType, e.ProviderMessageID, payload, e.OccurredAt)
	if err != nil {
		return uuid.Nil, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return uuid.Nil, false, rows.Err()
	}
	if err := rows.Scan(&id); err != nil {
		return uuid.Nil, false, err
	}
	return id, true, rows.Err()
}

// MarkEventProcessed stamps an event as applied to its recipient.
func (r *Repository) MarkEventProcessed(ctx context.Context, eventID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_events SET processed = true, processed_at = now() WHERE id = $1
	`, eventID)
	return err
}

// RecordLookupMiss increments the event's lookup attempts and flips it to
// permanently unmatched once the attempt budget is spent.
func (r *Repository) RecordLookupMiss(ctx context.Context, eventID uuid.UUID, maxAttempts int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_events
		SET lookup_attempts = lookup_attempts + 1,
		    permanently_unmatched = (lookup_attempts + 1 >= $2)
		WHERE id = $1
	`, eventID, maxAttempts)
	return err
}

// ListUnmatched returns buffered events still waiting for their recipient
// row, oldest first.
func (r *Repository) ListUnmatched(ctx context.Context, limit int) ([]domain.WebhookEvent, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, event_type, provider_message_id, payload, occurred_at,
		       processed, lookup_attempts, permanently_unmatched, created_at, processed_at
		FROM webhook_events
		WHERE NOT processed AND NOT permanently_unmatched
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		var e domain.WebhookEvent
		if err := rows.Scan(
			&e.ID, &e.EventID, &e.EventType, &e.ProviderMessageID, &e.Payload, &e.OccurredAt,
			&e.Processed, &e.LookupAttempts, &e.PermanentlyUnmatched, &e.CreatedAt, &e.ProcessedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
