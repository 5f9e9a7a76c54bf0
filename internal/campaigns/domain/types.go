// Package domain provides core business rules and value types for the
// campaigns bounded context.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Channel identifies a delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	// ChannelMulti fans out per recipient: each recipient is sent over the
	// first configured channel their contact details support.
	ChannelMulti Channel = "multi-channel"
)

// Valid reports whether the channel is one of the supported set.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelMulti:
		return true
	}
	return false
}

// CampaignStatus is the campaign lifecycle state.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// campaignTransitions is the allowed lifecycle graph. Completed, failed and
// cancelled are terminal.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:     {CampaignScheduled, CampaignActive, CampaignCancelled},
	CampaignScheduled: {CampaignActive, CampaignCancelled},
	CampaignActive:    {CampaignPaused, CampaignCompleted, CampaignFailed, CampaignCancelled},
	CampaignPaused:    {CampaignActive, CampaignCancelled},
}

// CanCampaignTransition reports whether from may move to to.
func CanCampaignTransition(from, to CampaignStatus) bool {
	for _, allowed := range campaignTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Campaign is one outbound send over a channel (or all configured channels,
// for multi-channel).
type Campaign struct {
	ID                 uuid.UUID
	OrganizationID     uuid.UUID
	Name               string
	Channel            Channel
	Status             CampaignStatus
	Subject            string
	BodyTemplate       string
	RateLimitPerSecond int
	MaxRetries         int
	ConsentRequired    bool
	TotalRecipients    int
	ScheduledAt        *time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	FailureReason      *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Recipient is one campaign delivery target with its delivery state.
type Recipient struct {
	ID                uuid.UUID
	CampaignID        uuid.UUID
	LeadID            *uuid.UUID
	Name              string
	Phone             string
	Email             string
	Variables         map[string]any
	DeliveryStatus    DeliveryStatus
	QueuedAt          time.Time
	SentAt            *time.Time
	DeliveredAt       *time.Time
	ReadAt            *time.Time
	FailedAt          *time.Time
	RetryCount        int
	NextRetryAt       *time.Time
	Retryable         bool
	IsDuplicate       bool
	ConsentChecked    bool
	ProviderMessageID *string
	ErrorCode         *string
	ErrorMessage      *string
}

// WebhookEvent is a normalized provider delivery callback.
type WebhookEvent struct {
	ID                   uuid.UUID
	EventID              string
	EventType            string
	ProviderMessageID    string
	Payload              map[string]any
	OccurredAt           time.Time
	Processed            bool
	LookupAttempts       int
	PermanentlyUnmatched bool
	CreatedAt            time.Time
	ProcessedAt          *time.Time
}

// Webhook event types the reconciler understands.
const (
	EventDelivered = "delivered"
	EventRead      = "read"
	EventFailed    = "failed"
	EventBounced   = "bounced"
)
