// Package transport defines request and response shapes for the routing API.
package transport

import (
	"time"

	"leadflow_backend/internal/routing/domain"

	"github.com/google/uuid"
)

// CreateLeadRequest creates and routes a new lead.
type CreateLeadRequest struct {
	OrganizationID uuid.UUID      `json:"organizationId" validate:"required"`
	Name           string         `json:"name" validate:"required,min=1,max=200"`
	Email          string         `json:"email" validate:"omitempty,email"`
	Phone          string         `json:"phone" validate:"omitempty,max=32"`
	Source         string         `json:"source" validate:"omitempty,max=100"`
	Stage          string         `json:"stage" validate:"omitempty,max=100"`
	Priority       int            `json:"priority" validate:"omitempty,min=0"`
	Attributes     map[string]any `json:"attributes"`
}

// AssignLeadRequest assigns a lead to an explicit agent.
type AssignLeadRequest struct {
	AgentID uuid.UUID `json:"agentId" validate:"required"`
	Reason  *string   `json:"reason" validate:"omitempty,max=500"`
}

// BulkAssignRequest assigns many leads to one agent.
type BulkAssignRequest struct {
	LeadIDs []uuid.UUID `json:"leadIds" validate:"required,min=1,max=500"`
	AgentID uuid.UUID   `json:"agentId" validate:"required"`
}

// BulkAssignResponse reports how many assignments succeeded.
type BulkAssignResponse struct {
	Requested int `json:"requested"`
	Assigned  int `json:"assigned"`
}

// CreateAgentRequest registers a routable agent.
type CreateAgentRequest struct {
	OrganizationID uuid.UUID `json:"organizationId" validate:"required"`
	Name           string    `json:"name" validate:"required,min=1,max=200"`
	MaxCapacity    int       `json:"maxCapacity" validate:"required,min=1"`
	IsAvailable    *bool     `json:"isAvailable"`
}

// AvailabilityRequest flips an agent's availability.
type AvailabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

// CreateRuleRequest adds an assignment rule.
type CreateRuleRequest struct {
	OrganizationID uuid.UUID          `json:"organizationId" validate:"required"`
	Name           string             `json:"name" validate:"required,min=1,max=200"`
	RuleOrder      int                `json:"ruleOrder" validate:"min=0"`
	MatchType      string             `json:"matchType" validate:"required,oneof=direct round_robin pool"`
	Conditions     []domain.Condition `json:"conditions"`
	MatchAll       bool               `json:"matchAll"`
	TargetAgentIDs []uuid.UUID        `json:"targetAgentIds"`
	PoolID         *uuid.UUID         `json:"poolId"`
	IsActive       *bool              `json:"isActive"`
}

// RuleActiveRequest toggles a rule.
type RuleActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// CreatePoolRequest adds an agent pool.
type CreatePoolRequest struct {
	OrganizationID uuid.UUID   `json:"organizationId" validate:"required"`
	Name           string      `json:"name" validate:"required,min=1,max=200"`
	MemberAgentIDs []uuid.UUID `json:"memberAgentIds" validate:"required,min=1"`
}

// CreateAutoRuleRequest adds an auto-reassignment rule for the sweep.
type CreateAutoRuleRequest struct {
	OrganizationID     uuid.UUID   `json:"organizationId" validate:"required"`
	Name               string      `json:"name" validate:"required,min=1,max=200"`
	Stages             []string    `json:"stages" validate:"required,min=1"`
	DaysWithoutContact int         `json:"daysWithoutContact" validate:"required,min=1"`
	TargetAgentIDs     []uuid.UUID `json:"targetAgentIds"`
	PoolID             *uuid.UUID  `json:"poolId"`
	IsActive           *bool       `json:"isActive"`
}

// LogEntryResponse is one assignment history row.
type LogEntryResponse struct {
	ID          uuid.UUID  `json:"id"`
	FromAgentID *uuid.UUID `json:"fromAgentId,omitempty"`
	ToAgentID   *uuid.UUID `json:"toAgentId,omitempty"`
	Method      string     `json:"method"`
	RuleID      *uuid.UUID `json:"ruleId,omitempty"`
	Reason      *string    `json:"reason,omitempty"`
	CanUndo     bool       `json:"canUndo"`
	UndoneAt    *time.Time `json:"undoneAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// ToLogEntryResponse maps a domain log entry to its API shape.
func ToLogEntryResponse(e domain.AssignmentLogEntry) LogEntryResponse {
	return LogEntryResponse{
		ID:          e.ID,
		FromAgentID: e.FromAgentID,
		ToAgentID:   e.ToAgentID,
		Method:      string(e.Method),
		RuleID:      e.RuleID,
		Reason:      e.Reason,
		CanUndo:     e.CanUndo,
		UndoneAt:    e.UndoneAt,
		CreatedAt:   e.CreatedAt,
	}
}
