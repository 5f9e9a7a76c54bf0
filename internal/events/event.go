// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"leadflow_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Routing Domain Events
// =============================================================================

// LeadAssigned is published when a lead is assigned or reassigned to an agent.
type LeadAssigned struct {
	BaseEvent
	LeadID         uuid.UUID  `json:"leadId"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	PreviousAgent  *uuid.UUID `json:"previousAgent,omitempty"`
	NewAgent       uuid.UUID  `json:"newAgent"`
	Method         string     `json:"method"`
	RuleID         *uuid.UUID `json:"ruleId,omitempty"`
	LogEntryID     uuid.UUID  `json:"logEntryId"`
}

func (e LeadAssigned) EventName() string { return "routing.lead.assigned" }

// AssignmentUndone is published when an assignment is reverted.
type AssignmentUndone struct {
	BaseEvent
	LeadID         uuid.UUID  `json:"leadId"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	RestoredAgent  *uuid.UUID `json:"restoredAgent,omitempty"`
	LogEntryID     uuid.UUID  `json:"logEntryId"`
}

func (e AssignmentUndone) EventName() string { return "routing.assignment.undone" }

// =============================================================================
// Campaign Domain Events
// =============================================================================

// CampaignStarted is published when a campaign transitions to active.
type CampaignStarted struct {
	BaseEvent
	CampaignID      uuid.UUID `json:"campaignId"`
	OrganizationID  uuid.UUID `json:"organizationId"`
	Channel         string    `json:"channel"`
	TotalRecipients int       `json:"totalRecipients"`
}

func (e CampaignStarted) EventName() string { return "campaigns.started" }

// CampaignCompleted is published when every recipient reached a terminal state.
type CampaignCompleted struct {
	BaseEvent
	CampaignID     uuid.UUID `json:"campaignId"`
	OrganizationID uuid.UUID `json:"organizationId"`
}

func (e CampaignCompleted) EventName() string { return "campaigns.completed" }

// CampaignFailed is published when dispatch cannot proceed at all.
type CampaignFailed struct {
	BaseEvent
	CampaignID     uuid.UUID `json:"campaignId"`
	OrganizationID uuid.UUID `json:"organizationId"`
	Reason         string    `json:"reason"`
}

func (e CampaignFailed) EventName() string { return "campaigns.failed" }

// RecipientDeliveryFailed is published when a recipient exhausts its retries.
type RecipientDeliveryFailed struct {
	BaseEvent
	CampaignID  uuid.UUID `json:"campaignId"`
	RecipientID uuid.UUID `json:"recipientId"`
	ErrorCode   string    `json:"errorCode"`
}

func (e RecipientDeliveryFailed) EventName() string { return "campaigns.recipient.failed" }
