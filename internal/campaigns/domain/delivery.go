package domain

import "time"

// DeliveryStatus is a recipient's position in the delivery lifecycle.
type DeliveryStatus string

const (
	DeliveryQueued    DeliveryStatus = "queued"
	DeliverySending   DeliveryStatus = "sending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryBounced   DeliveryStatus = "bounced"
	DeliverySkipped   DeliveryStatus = "skipped"
)

// Outcome classifies an attempted delivery transition.
type Outcome int

const (
	// Applied means the transition changed state.
	Applied Outcome = iota
	// Duplicate means the transition was already applied; safe to ignore.
	Duplicate
	// Invalid means the transition is not allowed from the current state.
	Invalid
)

// MarkSending moves queued → sending.
func (r *Recipient) MarkSending() Outcome {
	switch r.DeliveryStatus {
	case DeliveryQueued:
		r.DeliveryStatus = DeliverySending
		return Applied
	case DeliverySending:
		return Duplicate
	default:
		return Invalid
	}
}

// MarkSent moves sending → sent, recording the provider's message id so
// later webhooks can be matched back to this recipient. Queued recipients
// must pass through sending first; the batch claim stamps that.
func (r *Recipient) MarkSent(at time.Time, providerMessageID string) Outcome {
	switch r.DeliveryStatus {
	case DeliverySending:
		r.DeliveryStatus = DeliverySent
		r.SentAt = &at
		if providerMessageID != "" {
			r.ProviderMessageID = &providerMessageID
		}
		return Applied
	case DeliverySent, DeliveryDelivered, DeliveryRead:
		return Duplicate
	default:
		return Invalid
	}
}

// MarkDelivered moves sent → delivered. A delivery callback arriving after
// the read callback is a duplicate: read already implies delivered.
func (r *Recipient) MarkDelivered(at time.Time) Outcome {
	switch r.DeliveryStatus {
	case DeliverySent:
		r.DeliveryStatus = DeliveryDelivered
		r.DeliveredAt = &at
		return Applied
	case DeliveryDelivered, DeliveryRead:
		return Duplicate
	default:
		return Invalid
	}
}

// MarkRead moves sent or delivered → read. A read callback that outruns the
// delivery callback backfills delivered_at with the read timestamp.
func (r *Recipient) MarkRead(at time.Time) Outcome {
	switch r.DeliveryStatus {
	case DeliverySent, DeliveryDelivered:
		r.DeliveryStatus = DeliveryRead
		r.ReadAt = &at
		if r.DeliveredAt == nil {
			r.DeliveredAt = &at
		}
		return Applied
	case DeliveryRead:
		return Duplicate
	default:
		return Invalid
	}
}

// MarkFailed records a send or delivery failure. retryable failures are
// eligible for the retry pass; nextRetryAt schedules the earliest attempt.
func (r *Recipient) MarkFailed(at time.Time, code, message string, retryable bool, nextRetryAt *time.Time) Outcome {
	switch r.DeliveryStatus {
	case DeliveryQueued, DeliverySending, DeliverySent:
		r.DeliveryStatus = DeliveryFailed
		r.FailedAt = &at
		r.ErrorCode = &code
		r.ErrorMessage = &message
		r.Retryable = retryable
		r.NextRetryAt = nextRetryAt
		return Applied
	case DeliveryFailed:
		return Duplicate
	default:
		return Invalid
	}
}

// MarkBounced records a provider bounce. Bounces are terminal and never
// retried.
func (r *Recipient) MarkBounced(at time.Time, code string) Outcome {
	switch r.DeliveryStatus {
	case DeliverySent, DeliveryDelivered:
		r.DeliveryStatus = DeliveryBounced
		r.FailedAt = &at
		r.ErrorCode = &code
		r.Retryable = false
		return Applied
	case DeliveryBounced:
		return Duplicate
	default:
		return Invalid
	}
}

// MarkSkipped excludes the recipient before any send attempt (duplicate
// contact or missing consent). Skipped recipients never enter the queue.
func (r *Recipient) MarkSkipped(reason string) Outcome {
	switch r.DeliveryStatus {
	case DeliveryQueued:
		r.DeliveryStatus = DeliverySkipped
		r.ErrorCode = &reason
		return Applied
	case DeliverySkipped:
		return Duplicate
	default:
		return Invalid
	}
}

// Requeue returns a failed retryable recipient to the queue for another
// attempt. The caller has already verified retry budget and backoff.
func (r *Recipient) Requeue(now time.Time) Outcome {
	if r.DeliveryStatus != DeliveryFailed || !r.Retryable {
		return Invalid
	}
	r.DeliveryStatus = DeliveryQueued
	r.QueuedAt = now
	r.RetryCount++
	r.FailedAt = nil
	r.NextRetryAt = nil
	return Applied
}

// Terminal reports whether the recipient needs no further work. Failed
// recipients with retry budget left are not terminal.
func (r *Recipient) Terminal(maxRetries int) bool {
	switch r.DeliveryStatus {
	case DeliveryDelivered, DeliveryRead, DeliveryBounced, DeliverySkipped:
		return true
	case DeliveryFailed:
		return !r.Retryable || r.RetryCount >= maxRetries
	default:
		return false
	}
}
