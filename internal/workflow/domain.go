// Package workflow moves business entities through their declared status graphs.
// Status columns are written only by Engine, one audited compare-and-set per change.
package workflow

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/talentdesk/talentdesk/internal/shared"
)

// Kind names one state machine. Several machines may share an entity table.
type Kind string

const (
	KindSubmission   Kind = "submission"
	KindJobApproval  Kind = "job_approval"
	KindJobOperation Kind = "job_operation"
	KindCandidate    Kind = "candidate"
	KindInboxItem    Kind = "inbox_item"
)

// Status is a state of a machine.
type Status string

// SideEffect names an action run after a transition commits.
type SideEffect string

const (
	EffectNotifyOwner             SideEffect = "notify_owner"
	EffectNotifyAssignee          SideEffect = "notify_assignee"
	EffectIncrementJobSubmissions SideEffect = "increment_job_submissions"
	EffectIncrementJobPlacements  SideEffect = "increment_job_placements"
	EffectIncrementJobApplicants  SideEffect = "increment_job_applicants"
	EffectOpenJob                 SideEffect = "open_job"
)

// Edge is a legal status change and the permission it requires.
type Edge struct {
	From       Status            `json:"from"`
	To         Status            `json:"to"`
	Permission shared.Permission `json:"permission"`
	Effects    []SideEffect      `json:"effects,omitempty"`
	// Reopen marks an edge leaving a terminal state.
	Reopen bool `json:"reopen,omitempty"`
}

// Machine declares the status graph of one Kind.
type Machine struct {
	Kind     Kind     `json:"kind"`
	Initial  Status   `json:"initial"`
	States   []Status `json:"states"`
	Terminal []Status `json:"terminal"`
	Edges    []Edge   `json:"edges"`
	// StayPermission authorizes a request whose target equals the current status.
	StayPermission shared.Permission `json:"stay_permission"`
}

// IsTerminal reports whether s is a terminal state of the machine.
func (m Machine) IsTerminal(s Status) bool {
	for _, t := range m.Terminal {
		if t == s {
			return true
		}
	}
	return false
}

// HasState reports whether s belongs to the machine.
func (m Machine) HasState(s Status) bool {
	for _, st := range m.States {
		if st == s {
			return true
		}
	}
	return false
}

// Entity is the workflow view of a stored record.
type Entity struct {
	Kind       Kind   `json:"kind"`
	ID         int64  `json:"id"`
	Status     Status `json:"status"`
	OwnerID    int64  `json:"owner_id,omitempty"`
	AssigneeID int64  `json:"assignee_id,omitempty"`
	ParentID   int64  `json:"parent_id,omitempty"`
}

// Context carries caller supplied details of a transition request.
type Context struct {
	Comment string
	// ExpectedStatus, when set, must equal the stored status or the request is stale.
	ExpectedStatus Status
	Payload        map[string]any
}

// Result describes a completed transition.
type Result struct {
	AuditID int64     `json:"audit_id,omitempty"`
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	NoOp    bool      `json:"no_op"`
	TraceID uuid.UUID `json:"trace_id"`
}

// Event is handed to side effects after commit.
type Event struct {
	ActorID int64
	Entity  Entity
	From    Status
	To      Status
	AuditID int64
	TraceID uuid.UUID
	Comment string
	At      time.Time
}

// ErrConcurrentUpdate is returned by stores when the transaction lost a race.
var ErrConcurrentUpdate = errors.New("workflow: concurrent update")
