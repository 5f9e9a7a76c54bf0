package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"leadflow_backend/internal/campaigns/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const recipientColumns = `id, campaign_id, lead_id, name, phone, email, variables,
	delivery_status, queued_at, sent_at, delivered_at, read_at, failed_at,
	retry_count, next_retry_at, retryable, is_duplicate, consent_checked,
	provider_message_id, error_code, error_message`

func scanRecipient(row pgx.Row) (domain.Recipient, error) {
	var rec domain.Recipient
	var status string
	err := row.Scan(
		&rec.ID, &rec.CampaignID, &rec.LeadID, &rec.Name, &rec.Phone, &rec.Email, &rec.Variables,
		&status, &rec.QueuedAt, &rec.SentAt, &rec.DeliveredAt, &rec.ReadAt, &rec.FailedAt,
		&rec.RetryCount, &rec.NextRetryAt, &rec.Retryable, &rec.IsDuplicate, &rec.ConsentChecked,
		&rec.ProviderMessageID, &rec.ErrorCode, &rec.ErrorMessage,
	)
	rec.DeliveryStatus = domain.DeliveryStatus(status)
	return rec, err
}

// AddRecipients bulk-inserts recipients for a campaign. Status, duplicate and
// consent flags come pre-computed from materialization.
func (r *Repository) AddRecipients(ctx context.Context, recipients []domain.Recipient) error {
	if len(recipients) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range recipients {
		vars := rec.Variables
		if vars == nil {
			vars = map[string]any{}
		}
		batch.Queue(`
			INSERT INTO campaign_recipients
				(campaign_id, lead_id, name, phone, email, variables,
				 delivery_status, is_duplicate, consent_checked, error_code)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, rec.CampaignID, rec.LeadID, rec.Name, rec.Phone, rec.Email, vars,
			string(rec.DeliveryStatus), rec.IsDuplicate, rec.ConsentChecked, rec.ErrorCode)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for range recipients {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ClaimQueuedBatch atomically claims up to limit queued recipients and marks
// them sending. Concurrent dispatchers skip each other's claims.
func (r *Repository) ClaimQueuedBatch(ctx context.Context, campaignID uuid.UUID, limit int) ([]domain.Recipient, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		WITH cte AS (
			SELECT id
			FROM campaign_recipients
			WHERE campaign_id = $1 AND delivery_status = 'queued'
			ORDER BY queued_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE campaign_recipients cr
		SET delivery_status = 'sending', updated_at = now()
		FROM cte
		WHERE cr.id = cte.id
		RETURNING `+qualified(recipientColumns, "cr")+`
	`, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recipients []domain.Recipient
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

// SaveDelivery persists a recipient's delivery state after a transition
// applied in memory by the state machine.
func (r *Repository) SaveDelivery(ctx context.Context, rec domain.Recipient) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaign_recipients
		SET delivery_status = $2, queued_at = $3, sent_at = $4, delivered_at = $5,
		    read_at = $6, failed_at = $7, retry_count = $8, next_retry_at = $9,
		    retryable = $10, provider_message_id = $11, error_code = $12,
		    error_message = $13, updated_at = now()
		WHERE id = $1
	`, rec.ID, string(rec.DeliveryStatus), rec.QueuedAt, rec.SentAt, rec.DeliveredAt,
		rec.ReadAt, rec.FailedAt, rec.RetryCount, rec.NextRetryAt,
		rec.Retryable, rec.ProviderMessageID, rec.ErrorCode, rec.ErrorMessage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecipientNotFound
	}
	return nil
}

// GetByProviderMessageID finds the recipient a webhook refers to.
func (r *Repository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (domain.Recipient, error) {
	rec, err := scanRecipient(r.pool.QueryRow(ctx, `
		SELECT `+recipientColumns+`
		FROM campaign_recipients
		WHERE provider_message_id = $1
	`, providerMessageID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Recipient{}, ErrRecipientNotFound
	}
	return rec, err
}

// CountOutstanding returns the recipients that still need work: queued,
// sending, or failed-retryable with retry budget left. Zero means the
// campaign can complete.
func (r *Repository) CountOutstanding(ctx context.Context, campaignID uuid.UUID, maxRetries int) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM campaign_recipients
		WHERE campaign_id = $1
		  AND (delivery_status IN ('queued', 'sending')
		       OR (delivery_status = 'failed' AND retryable AND retry_count < $2))
	`, campaignID, maxRetries).Scan(&count)
	return count, err
}

// RequeueRetryable returns failed retryable recipients under budget whose
// backoff has elapsed to the queue, and reports how many moved.
func (r *Repository) RequeueRetryable(ctx context.Context, campaignID uuid.UUID, maxRetries int, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaign_recipients
		SET delivery_status = 'queued', queued_at = $3, retry_count = retry_count + 1,
		    failed_at = NULL, next_retry_at = NULL, updated_at = now()
		WHERE campaign_id = $1
		  AND delivery_status = 'failed'
		  AND retryable
		  AND retry_count < $2
		  AND (next_retry_at IS NULL OR next_retry_at <= $3)
	`, campaignID, maxRetries, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ExistingContacts returns the normalized phone and email keys already
// materialized for a campaign, for cross-batch dedupe.
func (r *Repository) ExistingContacts(ctx context.Context, campaignID uuid.UUID) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT phone, email FROM campaign_recipients WHERE campaign_id = $1 AND NOT is_duplicate
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var phone, email string
		if err := rows.Scan(&phone, &email); err != nil {
			return nil, err
		}
		if phone != "" {
			keys[phone] = struct{}{}
		}
		if email != "" {
			keys[email] = struct{}{}
		}
	}
	return keys, rows.Err()
}

// qualified prefixes each column in a comma-separated list with a table
// alias, for RETURNING clauses on aliased updates.
func qualified(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
