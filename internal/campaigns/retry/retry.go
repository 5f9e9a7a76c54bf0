package retry

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence port for the retry pass.
type Store interface {
	ListActiveCampaignIDs(ctx context.Context) ([]uuid.UUID, error)
	GetCampaignMaxRetries(ctx context.Context, campaignID uuid.UUID) (int, error)
	// RequeueRetryable moves failed retryable recipients under budget whose
	// backoff has elapsed back to queued, returning how many moved.
	RequeueRetryable(ctx context.Context, campaignID uuid.UUID, maxRetries int, now time.Time) (int, error)
}

// Coordinator runs the periodic retry pass.
type Coordinator struct {
	store    Store
	log      *logger.Logger
	interval time.Duration
}

// New creates a retry coordinator.
func New(store Store, log *logger.Logger, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Coordinator{store: store, log: log, interval: interval}
}

// Run executes retry passes on a fixed interval until the context is
// cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	c.log.Info("retry coordinator started", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("retry coordinator stopped")
			return
		case <-ticker.C:
			if _, err := c.RunRetryPass(ctx); err != nil {
				c.log.Error("retry pass failed", "error", err)
			}
		}
	}
}

// RunRetryPass requeues eligible failed recipients across all active
// campaigns and returns the total moved. The pass is re-entrant: requeueing
// is a single guarded UPDATE, so overlapping passes never double-requeue.
func (c *Coordinator) RunRetryPass(ctx context.Context) (int, error) {
	campaignIDs, err := c.store.ListActiveCampaignIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active campaigns: %w", err)
	}

	now := time.Now()
	total := 0
	for _, campaignID := range campaignIDs {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}

		maxRetries, err := c.store.GetCampaignMaxRetries(ctx, campaignID)
		if err != nil {
			c.log.Warn("retry pass skipped campaign", "campaign_id", campaignID, "error", err)
			continue
		}

		moved, err := c.store.RequeueRetryable(ctx, campaignID, maxRetries, now)
		if err != nil {
			c.log.Warn("requeue failed", "campaign_id", campaignID, "error", err)
			continue
		}
		if moved > 0 {
			c.log.Info("recipients requeued for retry", "campaign_id", campaignID, "count", moved)
		}
		total += moved
	}
	return total, nil
}
