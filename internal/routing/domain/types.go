// Package domain provides core business rules and value types for the
// routing bounded context.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MatchType determines how a matching rule resolves its target agent.
type MatchType string

const (
	MatchDirect     MatchType = "direct"
	MatchRoundRobin MatchType = "round_robin"
	MatchPool       MatchType = "pool"
)

// Method records how an assignment came about.
type Method string

const (
	MethodRule         Method = "rule"
	MethodRoundRobin   Method = "round_robin"
	MethodManual       Method = "manual"
	MethodReassignment Method = "reassignment"
)

// Lead identifies a prospect routed by this engine. The engine never
// deletes leads; soft-delete is owned elsewhere.
type Lead struct {
	ID                 uuid.UUID
	OrganizationID     uuid.UUID
	Name               string
	Email              string
	Phone              string
	Source             string
	Stage              string
	Attributes         map[string]any
	AssignedAgentID    *uuid.UUID
	PreviousAgentID    *uuid.UUID
	AssignmentPriority int
	ReassignmentDueAt  *time.Time
	LastContactedAt    *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// MatchAttributes merges the lead's built-in fields with its free-form
// attributes so rule conditions can reference either uniformly.
func (l Lead) MatchAttributes() map[string]any {
	attrs := make(map[string]any, len(l.Attributes)+6)
	for k, v := range l.Attributes {
		attrs[k] = v
	}
	attrs["name"] = l.Name
	attrs["email"] = l.Email
	attrs["phone"] = l.Phone
	attrs["source"] = l.Source
	attrs["stage"] = l.Stage
	attrs["priority"] = float64(l.AssignmentPriority)
	return attrs
}

// Agent is a routable destination for leads. Load fields are owned by the
// load tracker; everything else is read-only here.
type Agent struct {
	ID                 uuid.UUID
	OrganizationID     uuid.UUID
	Name               string
	IsAvailable        bool
	MaxCapacity        int
	CurrentLoad        int
	ConversionRate     float64
	AvgResponseSeconds float64
	LastAssignmentAt   *time.Time
}

// AssignmentRule is an ordered, versioned matcher. The round-robin cursor
// is the only field mutated during evaluation.
type AssignmentRule struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	RuleOrder      int
	MatchType      MatchType
	Conditions     []Condition
	MatchAll       bool
	TargetAgentIDs []uuid.UUID
	PoolID         *uuid.UUID
	RRCursor       int
	IsActive       bool
	Version        int
}

// Pool is a named agent group with its own round-robin cursor.
type Pool struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	MemberAgentIDs []uuid.UUID
	RRCursor       int
}

// AssignmentLogEntry is an immutable audit record. History rows are never
// deleted; undo marks the entry with undone_at instead.
type AssignmentLogEntry struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	LeadID         uuid.UUID
	FromAgentID    *uuid.UUID
	ToAgentID      *uuid.UUID
	Method         Method
	RuleID         *uuid.UUID
	Reason         *string
	CanUndo        bool
	UndoneAt       *time.Time
	UndoneBy       *uuid.UUID
	CreatedAt      time.Time
}

// AutoReassignmentRule configures the periodic reassignment sweep.
type AutoReassignmentRule struct {
	ID                 uuid.UUID
	OrganizationID     uuid.UUID
	Name               string
	Stages             []string
	DaysWithoutContact int
	TargetAgentIDs     []uuid.UUID
	PoolID             *uuid.UUID
	RRCursor           int
	IsActive           bool
}
