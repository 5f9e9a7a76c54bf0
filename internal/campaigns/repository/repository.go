// Package repository provides data access for the campaigns bounded context.
package repository

import (
	"context"
	"errors"
	"time"

	"leadflow_backend/internal/campaigns/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCampaignNotFound is returned when a campaign id does not exist.
var ErrCampaignNotFound = errors.New("campaign not found")

// ErrRecipientNotFound is returned when no recipient matches the lookup.
var ErrRecipientNotFound = errors.New("recipient not found")

// ErrInvalidTransition is returned when a campaign status change loses the
// compare-and-set race or is not allowed from the current status.
var ErrInvalidTransition = errors.New("invalid campaign status transition")

// Repository provides pgx-backed persistence for campaigns, recipients and
// webhook events.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a campaigns repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const campaignColumns = `id, organization_id, name, channel, status, subject, body_template,
	rate_limit_per_second, max_retries, consent_required, total_recipients,
	scheduled_at, started_at, completed_at, failure_reason, created_at, updated_at`

func scanCampaign(row pgx.Row) (domain.Campaign, error) {
	var c domain.Campaign
	var channel, status string
	err := row.Scan(
		&c.ID, &c.OrganizationID, &c.Name, &channel, &status, &c.Subject, &c.BodyTemplate,
		&c.RateLimitPerSecond, &c.MaxRetries, &c.ConsentRequired, &c.TotalRecipients,
		&c.ScheduledAt, &c.StartedAt, &c.CompletedAt, &c.FailureReason, &c.CreatedAt, &c.UpdatedAt,
	)
	c.Channel = domain.Channel(channel)
	c.Status = domain.CampaignStatus(status)
	return c, err
}

// CreateCampaign inserts a new campaign in draft (or scheduled, when a
// schedule time is set).
func (r *Repository) CreateCampaign(ctx context.Context, c domain.Campaign) (uuid.UUID, error) {
	status := domain.CampaignDraft
	if c.ScheduledAt != nil {
		status = domain.CampaignScheduled
	}

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO campaigns
			(organization_id, name, channel, status, subject, body_template,
			 rate_limit_per_second, max_retries, consent_required, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, c.OrganizationID, c.Name, string(c.Channel), string(status), c.Subject, c.BodyTemplate,
		c.RateLimitPerSecond, c.MaxRetries, c.ConsentRequired, c.ScheduledAt).Scan(&id)
	return id, err
}

// GetCampaign loads one campaign.
func (r *Repository) GetCampaign(ctx context.Context, campaignID uuid.UUID) (domain.Campaign, error) {
	c, err := scanCampaign(r.pool.QueryRow(ctx, `
		SELECT `+campaignColumns+` FROM campaigns WHERE id = $1
	`, campaignID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Campaign{}, ErrCampaignNotFound
	}
	return c, err
}

// TransitionCampaign moves a campaign between statuses with a compare-and-set
// on the current status, so two concurrent starters cannot both win.
func (r *Repository) TransitionCampaign(ctx context.Context, campaignID uuid.UUID, from, to domain.CampaignStatus) error {
	if !domain.CanCampaignTransition(from, to) {
		return ErrInvalidTransition
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE campaigns
		SET status = $3,
		    started_at = CASE WHEN $3 = 'active' AND started_at IS NULL THEN now() ELSE started_at END,
		    completed_at = CASE WHEN $3 IN ('completed', 'failed', 'cancelled') THEN now() ELSE completed_at END,
		    updated_at = now()
		WHERE id = $1 AND status = $2
	`, campaignID, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// FailCampaign marks a campaign failed with a reason, from any non-terminal
// status.
func (r *Repository) FailCampaign(ctx context.Context, campaignID uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaigns
		SET status = 'failed', failure_reason = $2, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ('draft', 'scheduled', 'active', 'paused')
	`, campaignID, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// SetTotalRecipients stamps the materialized recipient count.
func (r *Repository) SetTotalRecipients(ctx context.Context, campaignID uuid.UUID, total int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE campaigns SET total_recipients = $2, updated_at = now() WHERE id = $1
	`, campaignID, total)
	return err
}

// ListDueScheduled returns scheduled campaigns whose start time has passed.
func (r *Repository) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	if limit < 1 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE status = 'scheduled' AND scheduled_at IS NOT NULL AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// GetCampaignMaxRetries returns a campaign's retry budget.
func (r *Repository) GetCampaignMaxRetries(ctx context.Context, campaignID uuid.UUID) (int, error) {
	var maxRetries int
	err := r.pool.QueryRow(ctx, `
		SELECT max_retries FROM campaigns WHERE id = $1
	`, campaignID).Scan(&maxRetries)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrCampaignNotFound
	}
	return maxRetries, err
}

// ListActiveCampaignIDs returns campaigns currently dispatching, for the
// periodic retry pass.
func (r *Repository) ListActiveCampaignIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM campaigns WHERE status = 'active'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
