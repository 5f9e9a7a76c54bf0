package scheduler

import (
	"context"
	"fmt"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// CampaignRunner drives one campaign's dispatch loop.
type CampaignRunner interface {
	Run(ctx context.Context, campaignID uuid.UUID) error
}

// Sweeper runs one reassignment pass over all organizations.
type Sweeper interface {
	SweepOnce(ctx context.Context) error
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	runner  CampaignRunner
	sweeper Sweeper
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, runner CampaignRunner, sweeper Sweeper, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		runner:  runner,
		sweeper: sweeper,
		log:     log,
	}

	mux.HandleFunc(TaskCampaignDispatch, w.handleCampaignDispatch)
	mux.HandleFunc(TaskReassignmentSweep, w.handleReassignmentSweep)

	return w, nil
}

func (w *Worker) handleCampaignDispatch(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCampaignDispatchPayload(task)
	if err != nil {
		return err
	}

	campaignID, err := uuid.Parse(payload.CampaignID)
	if err != nil {
		return err
	}

	w.log.Info("campaign dispatch job started", "campaign_id", campaignID)
	return w.runner.Run(ctx, campaignID)
}

func (w *Worker) handleReassignmentSweep(ctx context.Context, _ *asynq.Task) error {
	if w.sweeper == nil {
		return nil
	}
	return w.sweeper.SweepOnce(ctx)
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
