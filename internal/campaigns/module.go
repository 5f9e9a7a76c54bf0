// Package campaigns provides the campaign delivery bounded context module.
package campaigns

import (
	"context"
	"time"

	"leadflow_backend/internal/campaigns/analytics"
	"leadflow_backend/internal/campaigns/channel"
	"leadflow_backend/internal/campaigns/dispatcher"
	"leadflow_backend/internal/campaigns/handler"
	"leadflow_backend/internal/campaigns/reconciler"
	"leadflow_backend/internal/campaigns/repository"
	"leadflow_backend/internal/campaigns/retry"
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config combines the config interfaces the campaigns module needs.
type Config interface {
	config.EmailConfig
	config.SMSConfig
	config.WhatsAppConfig
	config.DispatchConfig
	config.RetryConfig
	config.WebhookConfig
}

// Module is the campaigns bounded context module implementing http.Module.
type Module struct {
	handler    *handler.Handler
	dispatcher *dispatcher.Dispatcher
	reconciler *reconciler.Reconciler
	retrier    *retry.Coordinator
	repo       *repository.Repository
	log        *logger.Logger
}

// NewModule creates and initializes the campaigns module with all its
// dependencies. enqueue may be nil; dispatch then runs in-process.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, cfg Config, enqueue handler.DispatchEnqueuer, log *logger.Logger) *Module {
	repo := repository.New(pool)

	registry := channel.NewRegistry(providers(cfg)...)

	disp := dispatcher.New(repo, registry, eventBus, log, dispatcher.Config{
		BatchSize:          cfg.GetDispatchBatchSize(),
		ChannelConcurrency: cfg.GetChannelConcurrency(),
		RetryBackoffBase:   cfg.GetRetryBackoffBase(),
		RetryBackoffMax:    cfg.GetRetryBackoffMax(),
	})

	rec := reconciler.New(repo, log, cfg.GetWebhookLookupAttempts(), cfg.GetWebhookReplayInterval())
	retrier := retry.New(repo, log, cfg.GetRetryPassInterval())
	stats := analytics.New(repo)

	h := handler.New(repo, disp, rec, stats, enqueue, val, log)

	return &Module{
		handler:    h,
		dispatcher: disp,
		reconciler: rec,
		retrier:    retrier,
		repo:       repo,
		log:        log,
	}
}

// providers builds the configured channel providers. Constructors return
// typed nils for unconfigured channels, so only live providers are passed on.
func providers(cfg Config) []channel.Provider {
	var out []channel.Provider
	if p := channel.NewEmailProvider(cfg); p != nil {
		out = append(out, p)
	}
	if p := channel.NewSMSProvider(cfg); p != nil {
		out = append(out, p)
	}
	if p := channel.NewWhatsAppProvider(cfg); p != nil {
		out = append(out, p)
	}
	return out
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "campaigns"
}

// Dispatcher returns the campaign dispatcher for the scheduler worker.
func (m *Module) Dispatcher() *dispatcher.Dispatcher {
	return m.dispatcher
}

// Repository returns the campaigns repository for external collaborators.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// Run starts one campaign's dispatch loop, satisfying scheduler.CampaignRunner.
func (m *Module) Run(ctx context.Context, campaignID uuid.UUID) error {
	return m.dispatcher.Run(ctx, campaignID)
}

// StartDue activates scheduled campaigns whose start time has passed and
// returns their ids so the caller can kick off dispatch for each.
func (m *Module) StartDue(ctx context.Context, limit int) ([]uuid.UUID, error) {
	due, err := m.repo.ListDueScheduled(ctx, time.Now(), limit)
	if err != nil {
		return nil, err
	}

	var started []uuid.UUID
	for _, campaign := range due {
		if err := m.dispatcher.Start(ctx, campaign.ID); err != nil {
			// Lost the race to another starter, or the campaign moved on.
			m.log.Warn("due campaign not started", "campaign_id", campaign.ID, "error", err)
			continue
		}
		started = append(started, campaign.ID)
	}
	return started, nil
}

// RunRetryCoordinator runs the periodic retry pass; it blocks until the
// context is cancelled.
func (m *Module) RunRetryCoordinator(ctx context.Context) {
	m.retrier.Run(ctx)
}

// RunReconciler runs the webhook replay loop; it blocks until the context is
// cancelled.
func (m *Module) RunReconciler(ctx context.Context) {
	m.reconciler.Run(ctx)
}

// RegisterRoutes mounts campaign routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterCampaignRoutes(ctx.V1.Group("/campaigns"))
	m.handler.RegisterWebhookRoutes(ctx.Webhooks)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
