package rbac

import (
	"time"

	"github.com/talentdesk/talentdesk/internal/shared"
)

// Role represents a high-level permission grouping. System roles cannot be
// changed or deleted.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission represents an atomic (module, action) capability.
type Permission struct {
	ID          int64  `json:"id"`
	Module      string `json:"module"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// Key renders the permission as "module.action".
func (p Permission) Key() string {
	return p.Ref().Key()
}

// Ref returns the catalog reference of the permission.
func (p Permission) Ref() shared.Permission {
	return shared.Perm(p.Module, p.Action)
}

// RolePermission is the default decision for every actor holding the role.
type RolePermission struct {
	RoleID       int64 `json:"role_id"`
	PermissionID int64 `json:"permission_id"`
	Granted      bool  `json:"granted"`
}

// RoleGrant is one entry of a role permission replacement.
type RoleGrant struct {
	PermissionID int64 `json:"permission_id" validate:"required,gt=0"`
	Granted      bool  `json:"granted"`
}

// Override is an actor specific decision that always wins over the role default.
type Override struct {
	ActorID      int64     `json:"actor_id"`
	PermissionID int64     `json:"permission_id"`
	Granted      bool      `json:"granted"`
	SetBy        int64     `json:"set_by"`
	SetAt        time.Time `json:"set_at"`
}

// Grants is the authorization snapshot of one actor: the role edges of the role the
// actor holds and the actor's overrides, both keyed by "module.action".
type Grants struct {
	ActorID   int64           `json:"actor_id"`
	RoleID    int64           `json:"role_id"`
	Role      map[string]bool `json:"role"`
	Overrides map[string]bool `json:"overrides"`
}

// Resolve applies override, then role default, then default deny.
func (g Grants) Resolve(key string) (bool, DecisionSource) {
	if granted, ok := g.Overrides[key]; ok {
		return granted, SourceOverride
	}
	if granted, ok := g.Role[key]; ok {
		return granted, SourceRole
	}
	return false, SourceDefault
}

// DecisionSource names the rule that produced a decision.
type DecisionSource string

const (
	SourceOverride DecisionSource = "override"
	SourceRole     DecisionSource = "role"
	SourceDefault  DecisionSource = "default"
)

// Decision is the explained outcome of a permission check.
type Decision struct {
	Allowed  bool           `json:"allowed"`
	Source   DecisionSource `json:"source"`
	CacheHit bool           `json:"cache_hit"`
}
