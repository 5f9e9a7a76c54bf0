// The scheduler binary runs the background side of the system: the asynq
// worker for campaign dispatch jobs, the due-campaign starter, the retry
// coordinator, the webhook replay loop and the reassignment sweeper.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"leadflow_backend/internal/campaigns"
	"leadflow_backend/platform/events"
	"leadflow_backend/internal/routing"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dueCampaignInterval = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	routingModule := routing.NewModule(pool, eventBus, val, cfg, log)
	// The scheduler starts campaigns itself, so no enqueuer is wired here.
	campaignsModule := campaigns.NewModule(pool, eventBus, val, cfg, nil, log)

	client := initClient(cfg, log)
	if client != nil {
		defer func() { _ = client.Close() }()
	}

	var wg sync.WaitGroup

	// Asynq worker for dispatch jobs enqueued by the API.
	if client != nil {
		worker, err := scheduler.NewWorker(cfg, campaignsModule, routingModule, log)
		if err != nil {
			log.Error("failed to initialize scheduler worker", "error", err)
			panic("failed to initialize scheduler worker: " + err.Error())
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	} else {
		log.Warn("REDIS_URL not configured; running dispatch in-process only")
	}

	// Due-campaign starter.
	wg.Add(1)
	go func() {
		defer wg.Done()
		runDueCampaignStarter(ctx, campaignsModule, client, log)
	}()

	// Retry coordinator for failed retryable recipients.
	wg.Add(1)
	go func() {
		defer wg.Done()
		campaignsModule.RunRetryCoordinator(ctx)
	}()

	// Webhook replay loop for events that arrived before their send.
	wg.Add(1)
	go func() {
		defer wg.Done()
		campaignsModule.RunReconciler(ctx)
	}()

	// Reassignment sweeper for stale leads.
	wg.Add(1)
	go func() {
		defer wg.Done()
		routingModule.RunSweeper(ctx)
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, waiting for loops to stop")
	wg.Wait()
	log.Info("scheduler stopped")
}

// runDueCampaignStarter activates scheduled campaigns whose start time has
// passed and hands them to the dispatch worker (or runs dispatch in-process
// when no queue is configured).
func runDueCampaignStarter(ctx context.Context, campaignsModule *campaigns.Module, client *scheduler.Client, log *logger.Logger) {
	ticker := time.NewTicker(dueCampaignInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			started, err := campaignsModule.StartDue(ctx, 20)
			if err != nil {
				log.Error("due campaign pass failed", "error", err)
				continue
			}
			for _, campaignID := range started {
				kickDispatch(ctx, campaignsModule, client, campaignID, log)
			}
		}
	}
}

func kickDispatch(ctx context.Context, campaignsModule *campaigns.Module, client *scheduler.Client, campaignID uuid.UUID, log *logger.Logger) {
	if client != nil {
		if err := client.EnqueueCampaignDispatch(ctx, campaignID); err != nil {
			log.Error("failed to enqueue campaign dispatch", "campaign_id", campaignID, "error", err)
		}
		return
	}

	go func() {
		if err := campaignsModule.Run(ctx, campaignID); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("in-process dispatch stopped", "campaign_id", campaignID, "error", err)
		}
	}()
}

func initClient(cfg config.SchedulerConfig, log *logger.Logger) *scheduler.Client {
	if cfg.GetRedisURL() == "" {
		return nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return nil
	}
	return client
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
