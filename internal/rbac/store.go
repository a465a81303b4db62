package rbac

import (
	"context"

	"github.com/talentdesk/talentdesk/internal/audit"
	"github.com/talentdesk/talentdesk/internal/shared"
)

// Store is the durable permission store.
type Store interface {
	// LoadGrants returns shared.ErrNotFound when the actor does not exist.
	LoadGrants(ctx context.Context, actorID int64) (Grants, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	FindPermission(ctx context.Context, perm shared.Permission) (Permission, error)
	EnsurePermission(ctx context.Context, perm shared.Permission, description string) (Permission, error)
	ListOverrides(ctx context.Context, actorID int64) ([]Override, error)
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
}

// TxStore exposes the writes of one permission mutation. Every method runs inside
// the same transaction, including the audit append.
type TxStore interface {
	ActorRole(ctx context.Context, actorID int64) (int64, error)
	GetOverride(ctx context.Context, actorID, permissionID int64) (Override, bool, error)
	UpsertOverride(ctx context.Context, o Override) error
	DeleteOverride(ctx context.Context, actorID, permissionID int64) error
	LockRole(ctx context.Context, roleID int64) (Role, error)
	RolePermissions(ctx context.Context, roleID int64) ([]RolePermission, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, edges []RolePermission) error
	CountRoleHolders(ctx context.Context, roleID int64) (int, error)
	InsertRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, roleID int64) error
	SetActorRole(ctx context.Context, actorID, roleID int64) error
	AppendAudit(ctx context.Context, e audit.Entry) (int64, error)
}
