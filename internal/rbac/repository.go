package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/talentdesk/talentdesk/internal/audit"
	"github.com/talentdesk/talentdesk/internal/platform/db"
	"github.com/talentdesk/talentdesk/internal/shared"
)

const txAttempts = 3

// Repository provides PostgreSQL backed persistence for roles, permissions, role
// edges and overrides.
type Repository struct {
	pool  *pgxpool.Pool
	audit *audit.Repository
}

// NewRepository constructs a repository. Audit entries are appended through auditRepo
// on the mutation's transaction.
func NewRepository(pool *pgxpool.Pool, auditRepo *audit.Repository) *Repository {
	if auditRepo == nil {
		auditRepo = audit.NewRepository(pool)
	}
	return &Repository{pool: pool, audit: auditRepo}
}

var _ Store = (*Repository)(nil)

// LoadGrants reads the actor's role edges and overrides from one snapshot.
func (r *Repository) LoadGrants(ctx context.Context, actorID int64) (Grants, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return Grants{}, shared.Unavailable("rbac begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	g := Grants{ActorID: actorID, Role: map[string]bool{}, Overrides: map[string]bool{}}
	if err := tx.QueryRow(ctx, `SELECT role_id FROM users WHERE id = $1`, actorID).Scan(&g.RoleID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Grants{}, shared.ErrNotFound
		}
		return Grants{}, shared.Unavailable("rbac load actor", err)
	}
	rows, err := tx.Query(ctx, `SELECT 'role', p.module, p.action, rp.granted
FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = $1
UNION ALL
SELECT 'override', p.module, p.action, o.granted
FROM permission_overrides o JOIN permissions p ON p.id = o.permission_id
WHERE o.user_id = $2`, g.RoleID, actorID)
	if err != nil {
		return Grants{}, shared.Unavailable("rbac load grants", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			source, module, action string
			granted                bool
		)
		if err := rows.Scan(&source, &module, &action, &granted); err != nil {
			return Grants{}, shared.Unavailable("rbac scan grants", err)
		}
		key := shared.Perm(module, action).Key()
		if source == "override" {
			g.Overrides[key] = granted
		} else {
			g.Role[key] = granted
		}
	}
	if err := rows.Err(); err != nil {
		return Grants{}, shared.Unavailable("rbac load grants", err)
	}
	return g, nil
}

// GetRole returns a role by id.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT id, name, description, is_system, created_at, updated_at FROM roles WHERE id = $1`, id))
	return role, shared.Unavailable("rbac get role", err)
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, is_system, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, shared.Unavailable("rbac list roles", err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, shared.Unavailable("rbac scan role", err)
		}
		roles = append(roles, role)
	}
	return roles, shared.Unavailable("rbac list roles", rows.Err())
}

// ListPermissions returns the catalog ordered by key.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, module, action, description FROM permissions ORDER BY module, action`)
	if err != nil {
		return nil, shared.Unavailable("rbac list permissions", err)
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Module, &p.Action, &p.Description); err != nil {
			return nil, shared.Unavailable("rbac scan permission", err)
		}
		perms = append(perms, p)
	}
	return perms, shared.Unavailable("rbac list permissions", rows.Err())
}

// FindPermission resolves a catalog permission.
func (r *Repository) FindPermission(ctx context.Context, perm shared.Permission) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `SELECT id, module, action, description FROM permissions WHERE module = $1 AND action = $2`,
		perm.Module, perm.Action).Scan(&p.ID, &p.Module, &p.Action, &p.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, fmt.Errorf("%w: permission %s", shared.ErrNotFound, perm.Key())
	}
	if err != nil {
		return Permission{}, shared.Unavailable("rbac find permission", err)
	}
	return p, nil
}

// EnsurePermission inserts the permission or refreshes its description.
func (r *Repository) EnsurePermission(ctx context.Context, perm shared.Permission, description string) (Permission, error) {
	p := Permission{Module: perm.Module, Action: perm.Action, Description: description}
	err := r.pool.QueryRow(ctx, `INSERT INTO permissions (module, action, description) VALUES ($1, $2, $3)
ON CONFLICT (module, action) DO UPDATE SET description = EXCLUDED.description
RETURNING id`, perm.Module, perm.Action, description).Scan(&p.ID)
	if err != nil {
		return Permission{}, shared.Unavailable("rbac ensure permission", err)
	}
	return p, nil
}

// ListOverrides returns an actor's overrides.
func (r *Repository) ListOverrides(ctx context.Context, actorID int64) ([]Override, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, permission_id, granted, set_by, set_at
FROM permission_overrides WHERE user_id = $1 ORDER BY permission_id`, actorID)
	if err != nil {
		return nil, shared.Unavailable("rbac list overrides", err)
	}
	defer rows.Close()
	var out []Override
	for rows.Next() {
		var o Override
		if err := rows.Scan(&o.ActorID, &o.PermissionID, &o.Granted, &o.SetBy, &o.SetAt); err != nil {
			return nil, shared.Unavailable("rbac scan override", err)
		}
		out = append(out, o)
	}
	return out, shared.Unavailable("rbac list overrides", rows.Err())
}

// WithTx runs fn in a RepeatableRead transaction, retrying when it loses a
// serialization race.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	var err error
	for attempt := 0; attempt < txAttempts; attempt++ {
		err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
			return fn(ctx, &txRepo{tx: tx, audit: r.audit})
		})
		if !db.IsSerializationFailure(err) {
			break
		}
	}
	return shared.Unavailable("rbac tx", err)
}

type txRepo struct {
	tx    pgx.Tx
	audit *audit.Repository
}

func (t *txRepo) ActorRole(ctx context.Context, actorID int64) (int64, error) {
	var roleID int64
	err := t.tx.QueryRow(ctx, `SELECT role_id FROM users WHERE id = $1 FOR UPDATE`, actorID).Scan(&roleID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: actor %d", shared.ErrNotFound, actorID)
	}
	return roleID, err
}

func (t *txRepo) GetOverride(ctx context.Context, actorID, permissionID int64) (Override, bool, error) {
	var o Override
	err := t.tx.QueryRow(ctx, `SELECT user_id, permission_id, granted, set_by, set_at
FROM permission_overrides WHERE user_id = $1 AND permission_id = $2`, actorID, permissionID).
		Scan(&o.ActorID, &o.PermissionID, &o.Granted, &o.SetBy, &o.SetAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Override{}, false, nil
	}
	if err != nil {
		return Override{}, false, err
	}
	return o, true, nil
}

func (t *txRepo) UpsertOverride(ctx context.Context, o Override) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO permission_overrides (user_id, permission_id, granted, set_by, set_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, permission_id) DO UPDATE SET granted = EXCLUDED.granted, set_by = EXCLUDED.set_by, set_at = EXCLUDED.set_at`,
		o.ActorID, o.PermissionID, o.Granted, o.SetBy, o.SetAt)
	return err
}

func (t *txRepo) DeleteOverride(ctx context.Context, actorID, permissionID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM permission_overrides WHERE user_id = $1 AND permission_id = $2`, actorID, permissionID)
	return err
}

func (t *txRepo) LockRole(ctx context.Context, roleID int64) (Role, error) {
	return scanRole(t.tx.QueryRow(ctx, `SELECT id, name, description, is_system, created_at, updated_at
FROM roles WHERE id = $1 FOR UPDATE`, roleID))
}

func (t *txRepo) RolePermissions(ctx context.Context, roleID int64) ([]RolePermission, error) {
	rows, err := t.tx.Query(ctx, `SELECT role_id, permission_id, granted FROM role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var edges []RolePermission
	for rows.Next() {
		var e RolePermission
		if err := rows.Scan(&e.RoleID, &e.PermissionID, &e.Granted); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (t *txRepo) ReplaceRolePermissions(ctx context.Context, roleID int64, edges []RolePermission) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	if len(edges) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range edges {
		batch.Queue(`INSERT INTO role_permissions (role_id, permission_id, granted) VALUES ($1, $2, $3)`, roleID, e.PermissionID, e.Granted)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRepo) CountRoleHolders(ctx context.Context, roleID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role_id = $1`, roleID).Scan(&n)
	return n, err
}

func (t *txRepo) InsertRole(ctx context.Context, role Role) (Role, error) {
	out, err := scanRole(t.tx.QueryRow(ctx, `INSERT INTO roles (name, description, is_system) VALUES ($1, $2, FALSE)
RETURNING id, name, description, is_system, created_at, updated_at`, role.Name, role.Description))
	if db.IsUniqueViolation(err) {
		return Role{}, fmt.Errorf("%w: role %q already exists", shared.ErrValidation, role.Name)
	}
	return out, err
}

func (t *txRepo) DeleteRole(ctx context.Context, roleID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	return err
}

func (t *txRepo) SetActorRole(ctx context.Context, actorID, roleID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE users SET role_id = $1, updated_at = NOW() WHERE id = $2`, roleID, actorID)
	return err
}

func (t *txRepo) AppendAudit(ctx context.Context, e audit.Entry) (int64, error) {
	return t.audit.AppendTx(ctx, t.tx, e)
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, err
}
