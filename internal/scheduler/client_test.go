package scheduler

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type testConfig struct {
	redisURL string
}

func (c testConfig) GetRedisURL() string       { return c.redisURL }
func (c testConfig) GetRedisTLSInsecure() bool { return false }
func (c testConfig) GetAsynqQueueName() string { return "default" }
func (c testConfig) GetAsynqConcurrency() int  { return 1 }

func newTestClient(t *testing.T) (*Client, asynq.RedisClientOpt) {
	t.Helper()

	srv := miniredis.RunT(t)
	cfg := testConfig{redisURL: "redis://" + srv.Addr()}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = client.Close() })

	opt, err := redisClientOpt(cfg.GetRedisURL(), false)
	if err != nil {
		t.Fatal(err)
	}
	return client, opt
}

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(testConfig{}); err == nil {
		t.Fatal("expected an error without a redis url")
	}
}

func TestEnqueueCampaignDispatch(t *testing.T) {
	client, opt := newTestClient(t)
	campaignID := uuid.New()

	if err := client.EnqueueCampaignDispatch(context.Background(), campaignID); err != nil {
		t.Fatal(err)
	}

	inspector := asynq.NewInspector(opt)
	defer inspector.Close()

	info, err := inspector.GetTaskInfo("default", "campaign-dispatch-"+campaignID.String())
	if err != nil {
		t.Fatal(err)
	}
	if info.Type != TaskCampaignDispatch {
		t.Fatalf("task type = %s, want %s", info.Type, TaskCampaignDispatch)
	}

	payload, err := ParseCampaignDispatchPayload(asynq.NewTask(info.Type, info.Payload))
	if err != nil {
		t.Fatal(err)
	}
	if payload.CampaignID != campaignID.String() {
		t.Fatalf("payload campaign id = %s, want %s", payload.CampaignID, campaignID)
	}
}

func TestEnqueueCampaignDispatchIsIdempotent(t *testing.T) {
	client, _ := newTestClient(t)
	campaignID := uuid.New()

	if err := client.EnqueueCampaignDispatch(context.Background(), campaignID); err != nil {
		t.Fatal(err)
	}
	// The same campaign enqueued again collides on the task id and is
	// dropped silently.
	if err := client.EnqueueCampaignDispatch(context.Background(), campaignID); err != nil {
		t.Fatalf("duplicate enqueue should be a no-op, got %v", err)
	}
}
