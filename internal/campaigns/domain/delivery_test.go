package domain

import (
	"testing"
	"time"
)

func TestDeliveryHappyPath(t *testing.T) {
	r := &Recipient{DeliveryStatus: DeliveryQueued}
	now := time.Now()

	if r.MarkSending() != Applied {
		t.Fatal("queued should move to sending")
	}
	if r.MarkSent(now, "msg-1") != Applied {
		t.Fatal("sending should move to sent")
	}
	if r.ProviderMessageID == nil || *r.ProviderMessageID != "msg-1" {
		t.Fatal("provider message id should be recorded")
	}
	if r.MarkDelivered(now.Add(time.Second)) != Applied {
		t.Fatal("sent should move to delivered")
	}
	if r.MarkRead(now.Add(2*time.Second)) != Applied {
		t.Fatal("delivered should move to read")
	}
	if r.DeliveryStatus != DeliveryRead {
		t.Fatalf("expected read, got %s", r.DeliveryStatus)
	}
}

func TestDuplicateCallbacksAreIdempotent(t *testing.T) {
	r := &Recipient{DeliveryStatus: DeliverySent}
	now := time.Now()

	if r.MarkDelivered(now) != Applied {
		t.Fatal("first delivered should apply")
	}
	if r.MarkDelivered(now) != Duplicate {
		t.Fatal("second delivered should be a duplicate")
	}
	if r.MarkSent(now, "other") != Duplicate {
		t.Fatal("late sent confirmation should be a duplicate")
	}
}

func TestReadBeforeDeliveredBackfillsDeliveredAt(t *testing.T) {
	r := &Recipient{DeliveryStatus: DeliverySent}
	readAt := time.Now()

	if r.MarkRead(readAt) != Applied {
		t.Fatal("read from sent should apply")
	}
	if r.DeliveredAt == nil || !r.DeliveredAt.Equal(readAt) {
		t.Fatal("delivered_at should be backfilled with the read timestamp")
	}

	// The late delivered callback is now a no-op.
	if r.MarkDelivered(readAt.Add(-time.Second)) != Duplicate {
		t.Fatal("delivered after read should be a duplicate")
	}
	if !r.DeliveredAt.Equal(readAt) {
		t.Fatal("backfilled delivered_at must not be overwritten")
	}
}

func TestSentFromQueuedIsInvalid(t *testing.T) {
	r := &Recipient{DeliveryStatus: DeliveryQueued}

	if r.MarkSent(time.Now(), "msg-1") != Invalid {
		t.Fatal("sent cannot apply before sending")
	}
	if r.DeliveryStatus != DeliveryQueued {
		t.Fatalf("invalid transition must not change state, got %s", r.DeliveryStatus)
	}
	if r.SentAt != nil || r.ProviderMessageID != nil {
		t.Fatal("invalid transition must not record send details")
	}
}

func TestDeliveredFromQueuedIsInvalid(t *testing.T) {
	r := &Recipient{DeliveryStatus: DeliveryQueued}
	if r.MarkDelivered(time.Now()) != Invalid {
		t.Fatal("delivered cannot apply before sending")
	}

	failed := &Recipient{DeliveryStatus: DeliveryFailed}
	if failed.MarkRead(time.Now()) != Invalid {
		t.Fatal("read cannot apply to a failed recipient")
	}
}

func TestMarkFailedRecordsRetryState(t *testing.T) {
	r := &Recipient{DeliveryStatus: DeliverySending}
	now := time.Now()
	next := now.Add(30 * time.Second)

	if r.MarkFailed(now, "timeout", "gateway timeout", true, &next) != Applied {
		t.Fatal("sending should move to failed")
	}
	if !r.Retryable || r.NextRetryAt == nil {
		t.Fatal("retryable failure should carry a next retry time")
	}
	if r.MarkFailed(now, "timeout", "again", true, &next) != Duplicate {
		t.Fatal("repeated failure report should be a duplicate")
	}
}

func TestRequeueResetsFailureState(t *testing.T) {
	next := time.Now()
	r := &Recipient{
		DeliveryStatus: DeliveryFailed,
		Retryable:      true,
		RetryCount:     1,
		FailedAt:       &next,
		NextRetryAt:    &next,
	}

	if r.Requeue(time.Now()) != Applied {
		t.Fatal("failed retryable recipient should requeue")
	}
	if r.DeliveryStatus != DeliveryQueued || r.RetryCount != 2 {
		t.Fatalf("expected queued with retry count 2, got %s/%d", r.DeliveryStatus, r.RetryCount)
	}
	if r.FailedAt != nil || r.NextRetryAt != nil {
		t.Fatal("failure markers should be cleared on requeue")
	}

	permanent := &Recipient{DeliveryStatus: DeliveryFailed, Retryable: false}
	if permanent.Requeue(time.Now()) != Invalid {
		t.Fatal("non-retryable failure must not requeue")
	}
}

func TestBounceIsTerminal(t *testing.T) {
	r := &Recipient{DeliveryStatus: DeliveryDelivered, Retryable: true}
	if r.MarkBounced(time.Now(), "hard_bounce") != Applied {
		t.Fatal("delivered should move to bounced")
	}
	if r.Retryable {
		t.Fatal("bounce clears retryability")
	}
	if !r.Terminal(3) {
		t.Fatal("bounced is terminal")
	}
}

func TestSkippedNeverQueues(t *testing.T) {
	r := &Recipient{DeliveryStatus: DeliveryQueued}
	if r.MarkSkipped("duplicate_contact") != Applied {
		t.Fatal("queued recipient should be skippable")
	}
	if r.MarkSending() != Invalid {
		t.Fatal("skipped recipient must not enter sending")
	}
	if !r.Terminal(3) {
		t.Fatal("skipped is terminal")
	}
}

func TestTerminalRespectsRetryBudget(t *testing.T) {
	r := &Recipient{DeliveryStatus: DeliveryFailed, Retryable: true, RetryCount: 1}
	if r.Terminal(3) {
		t.Fatal("retryable failure under budget is not terminal")
	}
	r.RetryCount = 3
	if !r.Terminal(3) {
		t.Fatal("exhausted retry budget is terminal")
	}
}

func TestCampaignTransitions(t *testing.T) {
	allowed := []struct{ from, to CampaignStatus }{
		{CampaignDraft, CampaignActive},
		{CampaignDraft, CampaignScheduled},
		{CampaignScheduled, CampaignActive},
		{CampaignActive, CampaignPaused},
		{CampaignPaused, CampaignActive},
		{CampaignActive, CampaignCompleted},
		{CampaignActive, CampaignFailed},
	}
	for _, tc := range allowed {
		if !CanCampaignTransition(tc.from, tc.to) {
			t.Fatalf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to CampaignStatus }{
		{CampaignCompleted, CampaignActive},
		{CampaignFailed, CampaignActive},
		{CampaignPaused, CampaignCompleted},
		{CampaignDraft, CampaignPaused},
		{CampaignCancelled, CampaignActive},
	}
	for _, tc := range denied {
		if CanCampaignTransition(tc.from, tc.to) {
			t.Fatalf("%s -> %s should be denied", tc.from, tc.to)
		}
	}
}
