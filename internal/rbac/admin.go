package rbac

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/talentdesk/talentdesk/internal/audit"
	"github.com/talentdesk/talentdesk/internal/shared"
)

// ListRoles returns every role.
func (r *Resolver) ListRoles(ctx context.Context) ([]Role, error) {
	return r.store.ListRoles(ctx)
}

// ListPermissions returns the permission catalog.
func (r *Resolver) ListPermissions(ctx context.Context) ([]Permission, error) {
	return r.store.ListPermissions(ctx)
}

// ListOverrides returns the overrides set for an actor.
func (r *Resolver) ListOverrides(ctx context.Context, actorID int64) ([]Override, error) {
	return r.store.ListOverrides(ctx, actorID)
}

// EnsureCatalog upserts every catalog permission and invalidates the cache.
func (r *Resolver) EnsureCatalog(ctx context.Context, catalog []shared.CatalogEntry) ([]Permission, error) {
	out := make([]Permission, 0, len(catalog))
	for _, entry := range catalog {
		p, err := r.store.EnsurePermission(ctx, entry.Permission, entry.Description)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := r.invalidate(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// Grant sets an allow override for the actor.
func (r *Resolver) Grant(ctx context.Context, by, actorID int64, perm shared.Permission) error {
	return r.setOverride(ctx, by, actorID, perm, true)
}

// Revoke sets a deny override for the actor.
func (r *Resolver) Revoke(ctx context.Context, by, actorID int64, perm shared.Permission) error {
	return r.setOverride(ctx, by, actorID, perm, false)
}

func (r *Resolver) setOverride(ctx context.Context, by, actorID int64, perm shared.Permission, granted bool) error {
	p, err := r.findPermission(ctx, perm)
	if err != nil {
		return err
	}
	action := audit.ActionPermissionRevoke
	if granted {
		action = audit.ActionPermissionGrant
	}
	now := r.now().UTC()
	changed := false
	err = r.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if _, err := tx.ActorRole(ctx, actorID); err != nil {
			return err
		}
		current, exists, err := tx.GetOverride(ctx, actorID, p.ID)
		if err != nil {
			return err
		}
		if exists && current.Granted == granted {
			return nil
		}
		if err := tx.UpsertOverride(ctx, Override{ActorID: actorID, PermissionID: p.ID, Granted: granted, SetBy: by, SetAt: now}); err != nil {
			return err
		}
		_, err = tx.AppendAudit(ctx, audit.Entry{
			ActorID:     by,
			At:          now,
			EntityKind:  audit.EntityActor,
			EntityID:    strconv.FormatInt(actorID, 10),
			Action:      action,
			Description: fmt.Sprintf("%s override %s -> %s", p.Key(), overrideLabel(current, exists), decisionLabel(granted)),
			Before:      map[string]any{"permission": p.Key(), "override": overrideValue(current, exists)},
			After:       map[string]any{"permission": p.Key(), "override": decisionLabel(granted)},
		})
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return r.invalidate(ctx)
}

// ResetToRoleDefault removes the actor's override so the role default applies again.
func (r *Resolver) ResetToRoleDefault(ctx context.Context, by, actorID int64, perm shared.Permission) error {
	p, err := r.findPermission(ctx, perm)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	changed := false
	err = r.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if _, err := tx.ActorRole(ctx, actorID); err != nil {
			return err
		}
		current, exists, err := tx.GetOverride(ctx, actorID, p.ID)
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}
		if err := tx.DeleteOverride(ctx, actorID, p.ID); err != nil {
			return err
		}
		_, err = tx.AppendAudit(ctx, audit.Entry{
			ActorID:     by,
			At:          now,
			EntityKind:  audit.EntityActor,
			EntityID:    strconv.FormatInt(actorID, 10),
			Action:      audit.ActionPermissionReset,
			Description: fmt.Sprintf("%s override %s -> role default", p.Key(), overrideLabel(current, true)),
			Before:      map[string]any{"permission": p.Key(), "override": overrideValue(current, true)},
			After:       map[string]any{"permission": p.Key(), "override": nil},
		})
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return r.invalidate(ctx)
}

// SetRolePermissions replaces the role's edges with grants. Permissions absent from
// grants fall back to default deny for holders without an override.
func (r *Resolver) SetRolePermissions(ctx context.Context, by, roleID int64, grants []RoleGrant) error {
	catalog, err := r.store.ListPermissions(ctx)
	if err != nil {
		return err
	}
	keys := make(map[int64]string, len(catalog))
	for _, p := range catalog {
		keys[p.ID] = p.Key()
	}
	edges := make([]RolePermission, 0, len(grants))
	seen := make(map[int64]struct{}, len(grants))
	for _, g := range grants {
		if _, ok := keys[g.PermissionID]; !ok {
			return fmt.Errorf("%w: unknown permission %d", shared.ErrValidation, g.PermissionID)
		}
		if _, dup := seen[g.PermissionID]; dup {
			return fmt.Errorf("%w: permission %d listed twice", shared.ErrValidation, g.PermissionID)
		}
		seen[g.PermissionID] = struct{}{}
		edges = append(edges, RolePermission{RoleID: roleID, PermissionID: g.PermissionID, Granted: g.Granted})
	}

	now := r.now().UTC()
	changed := false
	err = r.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		role, err := tx.LockRole(ctx, roleID)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return &shared.ImmutableRoleError{RoleID: role.ID, Name: role.Name}
		}
		current, err := tx.RolePermissions(ctx, roleID)
		if err != nil {
			return err
		}
		before := edgeMap(current, keys)
		after := edgeMap(edges, keys)
		if sameEdges(before, after) {
			return nil
		}
		if err := tx.ReplaceRolePermissions(ctx, roleID, edges); err != nil {
			return err
		}
		_, err = tx.AppendAudit(ctx, audit.Entry{
			ActorID:     by,
			At:          now,
			EntityKind:  audit.EntityRole,
			EntityID:    strconv.FormatInt(roleID, 10),
			Action:      audit.ActionRolePermissions,
			Description: fmt.Sprintf("role %s permissions replaced (%s)", role.Name, diffSummary(before, after)),
			Before:      map[string]any{"permissions": before},
			After:       map[string]any{"permissions": after},
		})
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return r.invalidate(ctx)
}

// CreateRole inserts a non-system role without permissions.
func (r *Resolver) CreateRole(ctx context.Context, by int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	now := r.now().UTC()
	var created Role
	err := r.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		role, err := tx.InsertRole(ctx, Role{Name: name, Description: strings.TrimSpace(description)})
		if err != nil {
			return err
		}
		_, err = tx.AppendAudit(ctx, audit.Entry{
			ActorID:     by,
			At:          now,
			EntityKind:  audit.EntityRole,
			EntityID:    strconv.FormatInt(role.ID, 10),
			Action:      audit.ActionRoleCreate,
			Description: fmt.Sprintf("role %s created", role.Name),
			After:       map[string]any{"name": role.Name, "description": role.Description},
		})
		if err != nil {
			return err
		}
		created = role
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	return created, nil
}

// DeleteRole removes a role nobody holds.
func (r *Resolver) DeleteRole(ctx context.Context, by, roleID int64) error {
	now := r.now().UTC()
	err := r.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		role, err := tx.LockRole(ctx, roleID)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return &shared.ImmutableRoleError{RoleID: role.ID, Name: role.Name}
		}
		holders, err := tx.CountRoleHolders(ctx, roleID)
		if err != nil {
			return err
		}
		if holders > 0 {
			return &shared.RoleInUseError{RoleID: roleID, Holders: holders}
		}
		if err := tx.DeleteRole(ctx, roleID); err != nil {
			return err
		}
		_, err = tx.AppendAudit(ctx, audit.Entry{
			ActorID:     by,
			At:          now,
			EntityKind:  audit.EntityRole,
			EntityID:    strconv.FormatInt(roleID, 10),
			Action:      audit.ActionRoleDelete,
			Description: fmt.Sprintf("role %s deleted", role.Name),
			Before:      map[string]any{"name": role.Name, "description": role.Description},
		})
		return err
	})
	if err != nil {
		return err
	}
	return r.invalidate(ctx)
}

// AssignRole moves the actor to roleID. An actor holds exactly one role.
func (r *Resolver) AssignRole(ctx context.Context, by, actorID, roleID int64) error {
	now := r.now().UTC()
	changed := false
	err := r.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		currentRole, err := tx.ActorRole(ctx, actorID)
		if err != nil {
			return err
		}
		role, err := tx.LockRole(ctx, roleID)
		if err != nil {
			return err
		}
		if currentRole == roleID {
			return nil
		}
		if err := tx.SetActorRole(ctx, actorID, roleID); err != nil {
			return err
		}
		_, err = tx.AppendAudit(ctx, audit.Entry{
			ActorID:     by,
			At:          now,
			EntityKind:  audit.EntityActor,
			EntityID:    strconv.FormatInt(actorID, 10),
			Action:      audit.ActionRoleAssign,
			Description: fmt.Sprintf("role changed to %s", role.Name),
			Before:      map[string]any{"role_id": currentRole},
			After:       map[string]any{"role_id": roleID},
		})
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return r.invalidate(ctx)
}

func (r *Resolver) findPermission(ctx context.Context, perm shared.Permission) (Permission, error) {
	perm = shared.Perm(normalize(perm.Module), normalize(perm.Action))
	if perm.Module == "" || perm.Action == "" {
		return Permission{}, fmt.Errorf("%w: permission required", shared.ErrValidation)
	}
	return r.store.FindPermission(ctx, perm)
}

func decisionLabel(granted bool) string {
	if granted {
		return "allow"
	}
	return "deny"
}

func overrideValue(o Override, exists bool) any {
	if !exists {
		return nil
	}
	return decisionLabel(o.Granted)
}

func overrideLabel(o Override, exists bool) string {
	if !exists {
		return "none"
	}
	return decisionLabel(o.Granted)
}

func edgeMap(edges []RolePermission, keys map[int64]string) map[string]bool {
	out := make(map[string]bool, len(edges))
	for _, e := range edges {
		key, ok := keys[e.PermissionID]
		if !ok {
			key = "#" + strconv.FormatInt(e.PermissionID, 10)
		}
		out[key] = e.Granted
	}
	return out
}

func sameEdges(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if other, ok := b[k]; !ok || other != v {
			return false
		}
	}
	return true
}

func diffSummary(before, after map[string]bool) string {
	var changes []string
	for key, granted := range after {
		if prev, ok := before[key]; !ok || prev != granted {
			changes = append(changes, fmt.Sprintf("%s=%s", key, decisionLabel(granted)))
		}
	}
	for key := range before {
		if _, ok := after[key]; !ok {
			changes = append(changes, key+"=removed")
		}
	}
	sort.Strings(changes)
	return strings.Join(changes, ", ")
}
