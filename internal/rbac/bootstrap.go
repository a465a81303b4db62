package rbac

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/talentdesk/talentdesk/internal/audit"
	"github.com/talentdesk/talentdesk/internal/platform/db"
	"github.com/talentdesk/talentdesk/internal/shared"
)

// SystemAdminRole is the immutable role holding every catalog permission.
const SystemAdminRole = "admin"

// BootstrapAdmin makes sure the system admin role exists, grants it every stored
// permission and assigns it to actorID. Callers must invalidate the permission
// cache afterwards.
func (r *Repository) BootstrapAdmin(ctx context.Context, actorID int64, now time.Time) (Role, error) {
	if actorID <= 0 {
		return Role{}, fmt.Errorf("%w: bootstrap actor required", shared.ErrValidation)
	}
	var role Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		role, err = scanRole(tx.QueryRow(ctx, `INSERT INTO roles (name, description, is_system)
VALUES ($1, 'Full access, managed by authzctl', TRUE)
ON CONFLICT (name) DO UPDATE SET is_system = TRUE, updated_at = NOW()
RETURNING id, name, description, is_system, created_at, updated_at`, SystemAdminRole))
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id, granted)
SELECT $1, p.id, TRUE FROM permissions p
ON CONFLICT (role_id, permission_id) DO UPDATE SET granted = TRUE`, role.ID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO users (id, role_id) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET role_id = EXCLUDED.role_id, updated_at = NOW()`, actorID, role.ID); err != nil {
			return err
		}
		_, err = r.audit.AppendTx(ctx, tx, audit.Entry{
			ActorID:     actorID,
			At:          now,
			EntityKind:  audit.EntityRole,
			EntityID:    strconv.FormatInt(role.ID, 10),
			Action:      audit.ActionRoleBootstrap,
			Description: fmt.Sprintf("role %s synced with catalog and assigned to actor %d", role.Name, actorID),
			After:       map[string]any{"permissions": tag.RowsAffected(), "actor_id": actorID},
		})
		return err
	})
	if err != nil {
		return Role{}, shared.Unavailable("rbac bootstrap", err)
	}
	return role, nil
}
