// Package dispatcher drives campaign sends: recipient materialization,
// rate-limited batch dispatch through channel providers, and the campaign
// lifecycle around them.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadflow_backend/internal/campaigns/channel"
	"leadflow_backend/internal/campaigns/domain"
	"leadflow_backend/internal/campaigns/repository"
	"leadflow_backend/internal/campaigns/retry"
	"leadflow_backend/internal/events"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Store is the persistence port for dispatch.
type Store interface {
	GetCampaign(ctx context.Context, campaignID uuid.UUID) (domain.Campaign, error)
	TransitionCampaign(ctx context.Context, campaignID uuid.UUID, from, to domain.CampaignStatus) error
	FailCampaign(ctx context.Context, campaignID uuid.UUID, reason string) error
	SetTotalRecipients(ctx context.Context, campaignID uuid.UUID, total int) error
	AddRecipients(ctx context.Context, recipients []domain.Recipient) error
	ExistingContacts(ctx context.Context, campaignID uuid.UUID) (map[string]struct{}, error)
	ClaimQueuedBatch(ctx context.Context, campaignID uuid.UUID, limit int) ([]domain.Recipient, error)
	SaveDelivery(ctx context.Context, rec domain.Recipient) error
	CountOutstanding(ctx context.Context, campaignID uuid.UUID, maxRetries int) (int, error)
}

// Providers resolves channel providers for a campaign. ForRecipient serves
// multi-channel campaigns, where each recipient gets the first configured
// channel their contact details support.
type Providers interface {
	For(ch domain.Channel) (channel.Provider, error)
	ForRecipient(rec domain.Recipient) (channel.Provider, error)
	Channels() []domain.Channel
}

// Config carries the dispatch tuning knobs.
type Config struct {
	BatchSize          int
	ChannelConcurrency int
	RetryBackoffBase   time.Duration
	RetryBackoffMax    time.Duration
	// IdlePoll is how long the loop waits when recipients are outstanding
	// but none are claimable yet (failed sends waiting out their backoff).
	IdlePoll time.Duration
}

// RecipientInput is one recipient as submitted by the caller.
type RecipientInput struct {
	LeadID     *uuid.UUID
	Name       string
	Phone      string
	Email      string
	Variables  map[string]any
	HasConsent bool
}

// Dispatcher runs campaigns.
type Dispatcher struct {
	store     Store
	providers Providers
	bus       events.Bus
	log       *logger.Logger
	cfg       Config
}

// New creates a dispatcher.
func New(store Store, providers Providers, bus events.Bus, log *logger.Logger, cfg Config) *Dispatcher {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}
	if cfg.ChannelConcurrency < 1 {
		cfg.ChannelConcurrency = 5
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = 5 * time.Second
	}
	return &Dispatcher{store: store, providers: providers, bus: bus, log: log, cfg: cfg}
}

// AddRecipients materializes recipients for a campaign. Contacts are
// deduplicated by normalized phone and lowercased email, both within the
// batch and against already-materialized recipients; duplicates and
// consent-missing contacts are stored as skipped and never enter the queue.
func (d *Dispatcher) AddRecipients(ctx context.Context, campaignID uuid.UUID, inputs []RecipientInput) (added, skipped int, err error) {
	campaign, err := d.store.GetCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, repository.ErrCampaignNotFound) {
			return 0, 0, apperr.NotFound("campaign not found")
		}
		return 0, 0, fmt.Errorf("get campaign: %w", err)
	}
	if campaign.Status != domain.CampaignDraft && campaign.Status != domain.CampaignScheduled {
		return 0, 0, apperr.Conflict("recipients can only be added before the campaign starts")
	}

	seen, err := d.store.ExistingContacts(ctx, campaignID)
	if err != nil {
		return 0, 0, fmt.Errorf("existing contacts: %w", err)
	}

	recipients := make([]domain.Recipient, 0, len(inputs))
	for _, in := range inputs {
		rec := domain.Recipient{
			CampaignID:     campaignID,
			LeadID:         in.LeadID,
			Name:           strings.TrimSpace(in.Name),
			Phone:          phone.NormalizeE164(in.Phone),
			Email:          strings.ToLower(strings.TrimSpace(in.Email)),
			Variables:      in.Variables,
			DeliveryStatus: domain.DeliveryQueued,
			ConsentChecked: in.HasConsent,
		}

		switch {
		case d.isDuplicate(seen, rec):
			rec.DeliveryStatus = domain.DeliverySkipped
			rec.IsDuplicate = true
			code := "duplicate_contact"
			rec.ErrorCode = &code
			skipped++
		case campaign.ConsentRequired && !rec.ConsentChecked:
			rec.DeliveryStatus = domain.DeliverySkipped
			code := "no_consent"
			rec.ErrorCode = &code
			skipped++
		default:
			d.remember(seen, rec)
			added++
		}
		recipients = append(recipients, rec)
	}

	if err := d.store.AddRecipients(ctx, recipients); err != nil {
		return 0, 0, fmt.Errorf("add recipients: %w", err)
	}
	if err := d.store.SetTotalRecipients(ctx, campaignID, campaign.TotalRecipients+len(recipients)); err != nil {
		return 0, 0, fmt.Errorf("set total recipients: %w", err)
	}
	return added, skipped, nil
}

func (d *Dispatcher) isDuplicate(seen map[string]struct{}, rec domain.Recipient) bool {
	if rec.Phone != "" {
		if _, ok := seen[rec.Phone]; ok {
			return true
		}
	}
	if rec.Email != "" {
		if _, ok := seen[rec.Email]; ok {
			return true
		}
	}
	return false
}

func (d *Dispatcher) remember(seen map[string]struct{}, rec domain.Recipient) {
	if rec.Phone != "" {
		seen[rec.Phone] = struct{}{}
	}
	if rec.Email != "" {
		seen[rec.Email] = struct{}{}
	}
}

// Start validates and activates a campaign. Scheduled campaigns start only
// once their schedule time has passed. The status change is a compare-and-set
// so a concurrent starter loses cleanly.
func (d *Dispatcher) Start(ctx context.Context, campaignID uuid.UUID) error {
	campaign, err := d.store.GetCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, repository.ErrCampaignNotFound) {
			return apperr.NotFound("campaign not found")
		}
		return fmt.Errorf("get campaign: %w", err)
	}

	switch campaign.Status {
	case domain.CampaignDraft:
	case domain.CampaignScheduled:
		if campaign.ScheduledAt != nil && campaign.ScheduledAt.After(time.Now()) {
			return apperr.Conflict("campaign is scheduled for a later time")
		}
	default:
		return apperr.Conflict(fmt.Sprintf("campaign cannot start from status %q", campaign.Status))
	}

	if !campaign.Channel.Valid() {
		return apperr.Validation(fmt.Sprintf("unknown channel %q", campaign.Channel))
	}
	if campaign.Channel == domain.ChannelMulti {
		if len(d.providers.Channels()) == 0 {
			return apperr.Conflict("no channel providers configured")
		}
	} else if _, err := d.providers.For(campaign.Channel); err != nil {
		return apperr.Conflict(err.Error())
	}

	if err := d.store.TransitionCampaign(ctx, campaignID, campaign.Status, domain.CampaignActive); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return apperr.Conflict("campaign was started concurrently")
		}
		return fmt.Errorf("activate campaign: %w", err)
	}

	if d.bus != nil {
		d.bus.Publish(ctx, events.CampaignStarted{
			BaseEvent:       events.NewBaseEvent(),
			CampaignID:      campaign.ID,
			OrganizationID:  campaign.OrganizationID,
			Channel:         string(campaign.Channel),
			TotalRecipients: campaign.TotalRecipients,
		})
	}

	d.log.Info("campaign started", "campaign_id", campaignID, "channel", campaign.Channel)
	return nil
}

// Pause stops a running campaign from pulling new batches. In-flight sends
// finish; their state transitions still apply.
func (d *Dispatcher) Pause(ctx context.Context, campaignID uuid.UUID) error {
	err := d.store.TransitionCampaign(ctx, campaignID, domain.CampaignActive, domain.CampaignPaused)
	if errors.Is(err, repository.ErrInvalidTransition) {
		return apperr.Conflict("only active campaigns can be paused")
	}
	return err
}

// Resume reactivates a paused campaign. The caller re-enqueues the dispatch
// job.
func (d *Dispatcher) Resume(ctx context.Context, campaignID uuid.UUID) error {
	err := d.store.TransitionCampaign(ctx, campaignID, domain.CampaignPaused, domain.CampaignActive)
	if errors.Is(err, repository.ErrInvalidTransition) {
		return apperr.Conflict("only paused campaigns can be resumed")
	}
	return err
}

// Cancel aborts a campaign that has not finished. Recipients still queued
// stay where they are; the dispatch loop stops at its next status check.
func (d *Dispatcher) Cancel(ctx context.Context, campaignID uuid.UUID) error {
	campaign, err := d.store.GetCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, repository.ErrCampaignNotFound) {
			return apperr.NotFound("campaign not found")
		}
		return fmt.Errorf("get campaign: %w", err)
	}

	err = d.store.TransitionCampaign(ctx, campaignID, campaign.Status, domain.CampaignCancelled)
	if errors.Is(err, repository.ErrInvalidTransition) {
		return apperr.Conflict(fmt.Sprintf("campaign cannot be cancelled from status %q", campaign.Status))
	}
	return err
}

// Run dispatches batches until the campaign completes, fails, pauses or the
// context is cancelled. Safe to call again after a resume or a crash: claims
// are per-batch and state transitions are idempotent.
func (d *Dispatcher) Run(ctx context.Context, campaignID uuid.UUID) error {
	campaign, err := d.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("get campaign: %w", err)
	}
	// Multi-channel campaigns resolve a provider per recipient in sendOne.
	var provider channel.Provider
	if campaign.Channel == domain.ChannelMulti {
		if len(d.providers.Channels()) == 0 {
			return d.failCampaign(ctx, campaign, "provider_unavailable: no channel providers configured")
		}
	} else {
		provider, err = d.providers.For(campaign.Channel)
		if err != nil {
			return d.failCampaign(ctx, campaign, "provider_unavailable: "+err.Error())
		}
	}

	perSecond := campaign.RateLimitPerSecond
	if perSecond < 1 {
		perSecond = 10
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), perSecond)
	log := d.log.WithCampaign(campaignID.String())

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Re-check status each cycle so Pause takes effect between batches.
		campaign, err = d.store.GetCampaign(ctx, campaignID)
		if err != nil {
			return fmt.Errorf("get campaign: %w", err)
		}
		if campaign.Status != domain.CampaignActive {
			log.Info("dispatch loop stopping", "status", campaign.Status)
			return nil
		}

		batch, err := d.store.ClaimQueuedBatch(ctx, campaignID, d.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}

		if len(batch) == 0 {
			outstanding, err := d.store.CountOutstanding(ctx, campaignID, campaign.MaxRetries)
			if err != nil {
				return fmt.Errorf("count outstanding: %w", err)
			}
			if outstanding == 0 {
				return d.completeCampaign(ctx, campaign)
			}
			// Failed recipients are waiting out their backoff; the retry
			// pass will requeue them.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.cfg.IdlePoll):
			}
			continue
		}

		sent, failed, err := d.dispatchBatch(ctx, campaign, provider, limiter, batch)
		log.DispatchBatch(campaignID.String(), len(batch), sent, failed)
		if err != nil {
			var sendErr *channel.SendError
			if errors.As(err, &sendErr) && sendErr.Fatal {
				return d.failCampaign(ctx, campaign, sendErr.Error())
			}
			return fmt.Errorf("dispatch batch: %w", err)
		}
	}
}

// dispatchBatch sends one claimed batch through a bounded worker pool. A
// returned fatal SendError means the whole campaign must fail; any other
// error is an infrastructure problem and leaves the campaign active.
func (d *Dispatcher) dispatchBatch(ctx context.Context, campaign domain.Campaign, provider channel.Provider, limiter *rate.Limiter, batch []domain.Recipient) (sent, failed int, err error) {
	results := make([]error, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.ChannelConcurrency)

	for i := range batch {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				// Cancelled mid-batch; return the claim to the queue.
				rec := &batch[i]
				rec.DeliveryStatus = domain.DeliveryQueued
				return d.store.SaveDelivery(context.WithoutCancel(gctx), *rec)
			}
			results[i] = d.sendOne(gctx, campaign, provider, &batch[i])
			return nil
		})
	}
	if waitErr := g.Wait(); waitErr != nil {
		return sent, failed, waitErr
	}

	for i := range batch {
		switch {
		case results[i] == nil:
			if batch[i].DeliveryStatus == domain.DeliverySent {
				sent++
			} else {
				failed++
			}
		default:
			if err == nil {
				err = results[i]
			}
			failed++
		}
	}
	return sent, failed, err
}

// sendOne renders and sends a single recipient, applying the resulting state
// transition. A returned *SendError with Fatal set aborts the campaign. For
// multi-channel campaigns provider is nil and resolved here per recipient.
func (d *Dispatcher) sendOne(ctx context.Context, campaign domain.Campaign, provider channel.Provider, rec *domain.Recipient) error {
	now := time.Now()

	if provider == nil {
		p, err := d.providers.ForRecipient(*rec)
		if err != nil {
			d.applyFailure(ctx, campaign, rec, channel.NewSendError("unreachable_recipient", err.Error(), false))
			return nil
		}
		provider = p
	}

	if err := provider.Validate(*rec); err != nil {
		d.applyFailure(ctx, campaign, rec, channel.Classify(err))
		return nil
	}

	body, err := channel.RenderBody(campaign, *rec)
	if err != nil {
		// A template that cannot render for one recipient cannot render
		// for any; fail the campaign.
		return channel.NewFatalSendError("template_invalid", err.Error())
	}

	to := rec.Phone
	if provider.Channel() == domain.ChannelEmail {
		to = rec.Email
	}

	providerMessageID, err := provider.Send(ctx, channel.Message{
		To:      to,
		Subject: campaign.Subject,
		Body:    body,
	})
	if err != nil {
		sendErr := channel.Classify(err)
		if sendErr.Fatal {
			// Return the recipient to the queue: the failure is the
			// campaign's, not theirs.
			rec.DeliveryStatus = domain.DeliveryQueued
			_ = d.store.SaveDelivery(context.WithoutCancel(ctx), *rec)
			return sendErr
		}
		d.applyFailure(ctx, campaign, rec, sendErr)
		return nil
	}

	rec.MarkSent(now, providerMessageID)
	if err := d.store.SaveDelivery(ctx, *rec); err != nil {
		d.log.Error("failed to persist sent state", "recipient_id", rec.ID, "error", err)
	}
	return nil
}

// applyFailure records a per-recipient failure with its retry schedule.
func (d *Dispatcher) applyFailure(ctx context.Context, campaign domain.Campaign, rec *domain.Recipient, sendErr *channel.SendError) {
	now := time.Now()

	var nextRetry *time.Time
	if sendErr.Retryable && rec.RetryCount < campaign.MaxRetries {
		at := now.Add(retry.Backoff(d.cfg.RetryBackoffBase, d.cfg.RetryBackoffMax, rec.RetryCount))
		nextRetry = &at
	}

	rec.MarkFailed(now, sendErr.Code, sendErr.Message, sendErr.Retryable, nextRetry)
	if err := d.store.SaveDelivery(ctx, *rec); err != nil {
		d.log.Error("failed to persist failure state", "recipient_id", rec.ID, "error", err)
		return
	}

	if d.bus != nil && (!sendErr.Retryable || rec.RetryCount >= campaign.MaxRetries) {
		d.bus.Publish(ctx, events.RecipientDeliveryFailed{
			BaseEvent:   events.NewBaseEvent(),
			CampaignID:  campaign.ID,
			RecipientID: rec.ID,
			ErrorCode:   sendErr.Code,
		})
	}
}

func (d *Dispatcher) completeCampaign(ctx context.Context, campaign domain.Campaign) error {
	err := d.store.TransitionCampaign(ctx, campaign.ID, domain.CampaignActive, domain.CampaignCompleted)
	if errors.Is(err, repository.ErrInvalidTransition) {
		// A concurrent runner already completed it.
		return nil
	}
	if err != nil {
		return fmt.Errorf("complete campaign: %w", err)
	}

	if d.bus != nil {
		d.bus.Publish(ctx, events.CampaignCompleted{
			BaseEvent:      events.NewBaseEvent(),
			CampaignID:     campaign.ID,
			OrganizationID: campaign.OrganizationID,
		})
	}
	d.log.Info("campaign completed", "campaign_id", campaign.ID)
	return nil
}

func (d *Dispatcher) failCampaign(ctx context.Context, campaign domain.Campaign, reason string) error {
	if err := d.store.FailCampaign(context.WithoutCancel(ctx), campaign.ID, reason); err != nil {
		if !errors.Is(err, repository.ErrInvalidTransition) {
			return fmt.Errorf("fail campaign: %w", err)
		}
	}

	if d.bus != nil {
		d.bus.Publish(ctx, events.CampaignFailed{
			BaseEvent:      events.NewBaseEvent(),
			CampaignID:     campaign.ID,
			OrganizationID: campaign.OrganizationID,
			Reason:         reason,
		})
	}
	d.log.Error("campaign failed", "campaign_id", campaign.ID, "reason", reason)
	return nil
}
