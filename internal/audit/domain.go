package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action labels written by the core. Other callers may use their own labels.
const (
	ActionTransition       = "status.transition"
	ActionPermissionGrant  = "permission.grant"
	ActionPermissionRevoke = "permission.revoke"
	ActionPermissionReset  = "permission.reset"
	ActionRolePermissions  = "role.permissions"
	ActionRoleCreate       = "role.create"
	ActionRoleDelete       = "role.delete"
	ActionRoleAssign       = "role.assign"
	ActionRoleBootstrap    = "role.bootstrap"
)

// Entity kinds recorded for authorization changes.
const (
	EntityActor = "actor"
	EntityRole  = "role"
)

// Entry is one immutable history record.
type Entry struct {
	ID          int64          `json:"id"`
	ActorID     int64          `json:"actor_id"`
	At          time.Time      `json:"at"`
	EntityKind  string         `json:"entity_kind"`
	EntityID    string         `json:"entity_id"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	Before      map[string]any `json:"before,omitempty"`
	After       map[string]any `json:"after,omitempty"`
	TraceID     uuid.UUID      `json:"trace_id"`
}
