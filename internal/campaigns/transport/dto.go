// Package transport defines the request and response shapes for the
// campaigns HTTP API.
package transport

import (
	"time"

	"leadflow_backend/internal/campaigns/domain"

	"github.com/google/uuid"
)

// CreateCampaignRequest creates a campaign in draft (or scheduled, when
// scheduledAt is set).
type CreateCampaignRequest struct {
	OrganizationID     uuid.UUID  `json:"organizationId" validate:"required"`
	Name               string     `json:"name" validate:"required,max=200"`
	Channel            string     `json:"channel" validate:"required,oneof=email sms whatsapp multi-channel"`
	Subject            string     `json:"subject" validate:"max=500"`
	BodyTemplate       string     `json:"bodyTemplate" validate:"required"`
	RateLimitPerSecond int        `json:"rateLimitPerSecond" validate:"omitempty,min=1,max=1000"`
	MaxRetries         int        `json:"maxRetries" validate:"omitempty,min=0,max=10"`
	ConsentRequired    bool       `json:"consentRequired"`
	ScheduledAt        *time.Time `json:"scheduledAt,omitempty"`
}

// RecipientPayload is one recipient in an AddRecipientsRequest.
type RecipientPayload struct {
	LeadID     *uuid.UUID     `json:"leadId,omitempty"`
	Name       string         `json:"name" validate:"max=200"`
	Phone      string         `json:"phone" validate:"max=32"`
	Email      string         `json:"email" validate:"omitempty,email"`
	Variables  map[string]any `json:"variables,omitempty"`
	HasConsent bool           `json:"hasConsent"`
}

// AddRecipientsRequest materializes recipients onto a campaign.
type AddRecipientsRequest struct {
	Recipients []RecipientPayload `json:"recipients" validate:"required,min=1,max=1000,dive"`
}

// AddRecipientsResponse reports how the batch was materialized.
type AddRecipientsResponse struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// DeliveryWebhookRequest is a provider delivery callback as received on the
// webhook ingress.
type DeliveryWebhookRequest struct {
	EventID      string         `json:"eventId" validate:"required,max=200"`
	EventType    string         `json:"eventType" validate:"required,oneof=delivered read failed bounced"`
	MessageID    string         `json:"messageId" validate:"required,max=500"`
	OccurredAt   *time.Time     `json:"occurredAt,omitempty"`
	ErrorCode    string         `json:"errorCode,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// CampaignResponse is the external view of a campaign.
type CampaignResponse struct {
	ID                 uuid.UUID  `json:"id"`
	OrganizationID     uuid.UUID  `json:"organizationId"`
	Name               string     `json:"name"`
	Channel            string     `json:"channel"`
	Status             string     `json:"status"`
	Subject            string     `json:"subject,omitempty"`
	RateLimitPerSecond int        `json:"rateLimitPerSecond"`
	MaxRetries         int        `json:"maxRetries"`
	ConsentRequired    bool       `json:"consentRequired"`
	TotalRecipients    int        `json:"totalRecipients"`
	ScheduledAt        *time.Time `json:"scheduledAt,omitempty"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	FailureReason      *string    `json:"failureReason,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

// ToCampaignResponse maps a domain campaign to its external view.
func ToCampaignResponse(c domain.Campaign) CampaignResponse {
	return CampaignResponse{
		ID:                 c.ID,
		OrganizationID:     c.OrganizationID,
		Name:               c.Name,
		Channel:            string(c.Channel),
		Status:             string(c.Status),
		Subject:            c.Subject,
		RateLimitPerSecond: c.RateLimitPerSecond,
		MaxRetries:         c.MaxRetries,
		ConsentRequired:    c.ConsentRequired,
		TotalRecipients:    c.TotalRecipients,
		ScheduledAt:        c.ScheduledAt,
		StartedAt:          c.StartedAt,
		CompletedAt:        c.CompletedAt,
		FailureReason:      c.FailureReason,
		CreatedAt:          c.CreatedAt,
	}
}
