// Package analytics rolls recipient delivery state up into campaign-level
// metrics.
package analytics

import (
	"context"
	"errors"
	"fmt"

	"leadflow_backend/internal/campaigns/domain"
	"leadflow_backend/internal/campaigns/repository"
	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
)

// Store is the persistence port for analytics.
type Store interface {
	GetCampaign(ctx context.Context, campaignID uuid.UUID) (domain.Campaign, error)
	CountByStatus(ctx context.Context, campaignID uuid.UUID) (repository.StatusCounts, error)
	CountByErrorCode(ctx context.Context, campaignID uuid.UUID) (repository.ErrorCounts, error)
}

// Summary is a campaign's delivery funnel at a point in time.
type Summary struct {
	CampaignID uuid.UUID             `json:"campaignId"`
	Status     domain.CampaignStatus `json:"status"`
	Total      int                   `json:"total"`

	Queued    int `json:"queued"`
	Sending   int `json:"sending"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Read      int `json:"read"`
	Failed    int `json:"failed"`
	Bounced   int `json:"bounced"`
	Skipped   int `json:"skipped"`

	// Rates are fractions of the total recipient count, in [0, 1].
	DeliveryRate float64 `json:"deliveryRate"`
	ReadRate     float64 `json:"readRate"`
	FailureRate  float64 `json:"failureRate"`

	ErrorBreakdown map[string]int `json:"errorBreakdown"`
}

// Aggregator computes campaign summaries.
type Aggregator struct {
	store Store
}

// New creates an aggregator.
func New(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// Summarize builds the delivery funnel for one campaign.
func (a *Aggregator) Summarize(ctx context.Context, campaignID uuid.UUID) (Summary, error) {
	campaign, err := a.store.GetCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, repository.ErrCampaignNotFound) {
			return Summary{}, apperr.NotFound("campaign not found")
		}
		return Summary{}, fmt.Errorf("get campaign: %w", err)
	}

	byStatus, err := a.store.CountByStatus(ctx, campaignID)
	if err != nil {
		return Summary{}, fmt.Errorf("count by status: %w", err)
	}
	byError, err := a.store.CountByErrorCode(ctx, campaignID)
	if err != nil {
		return Summary{}, fmt.Errorf("count by error code: %w", err)
	}

	s := Summary{
		CampaignID:     campaign.ID,
		Status:         campaign.Status,
		Queued:         byStatus[string(domain.DeliveryQueued)],
		Sending:        byStatus[string(domain.DeliverySending)],
		Sent:           byStatus[string(domain.DeliverySent)],
		Delivered:      byStatus[string(domain.DeliveryDelivered)],
		Read:           byStatus[string(domain.DeliveryRead)],
		Failed:         byStatus[string(domain.DeliveryFailed)],
		Bounced:        byStatus[string(domain.DeliveryBounced)],
		Skipped:        byStatus[string(domain.DeliverySkipped)],
		ErrorBreakdown: byError,
	}
	for _, n := range byStatus {
		s.Total += n
	}

	// Read implies delivered; a read message counts in both funnels.
	if s.Total > 0 {
		s.DeliveryRate = float64(s.Delivered+s.Read) / float64(s.Total)
		s.ReadRate = float64(s.Read) / float64(s.Total)
		s.FailureRate = float64(s.Failed+s.Bounced) / float64(s.Total)
	}
	return s, nil
}
