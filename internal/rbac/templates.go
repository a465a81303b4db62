package rbac

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/talentdesk/talentdesk/internal/shared"
)

//go:embed roles.yaml
var defaultRolesYAML []byte

// RoleTemplate declares the edges of one non-system role.
type RoleTemplate struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Allow       []string `yaml:"allow"`
	Deny        []string `yaml:"deny"`
}

type templateFile struct {
	Roles []RoleTemplate `yaml:"roles"`
}

// ParseRoleTemplates decodes a YAML template document.
func ParseRoleTemplates(data []byte) ([]RoleTemplate, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: role templates: %v", shared.ErrValidation, err)
	}
	for i, tpl := range file.Roles {
		if strings.TrimSpace(tpl.Name) == "" {
			return nil, fmt.Errorf("%w: role template %d has no name", shared.ErrValidation, i)
		}
	}
	return file.Roles, nil
}

// DefaultRoleTemplates returns the templates shipped with the binary.
func DefaultRoleTemplates() []RoleTemplate {
	templates, err := ParseRoleTemplates(defaultRolesYAML)
	if err != nil {
		panic(err)
	}
	return templates
}

// ApplyTemplates creates missing roles and replaces their edges with the template.
// System roles are refused. Templates that match the stored edges change nothing.
func (r *Resolver) ApplyTemplates(ctx context.Context, by int64, templates []RoleTemplate) ([]Role, error) {
	perms, err := r.store.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int64, len(perms))
	for _, p := range perms {
		ids[p.Key()] = p.ID
	}
	roles, err := r.store.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Role, len(roles))
	for _, role := range roles {
		byName[role.Name] = role
	}

	out := make([]Role, 0, len(templates))
	for _, tpl := range templates {
		grants, err := templateGrants(tpl, ids)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSpace(tpl.Name)
		role, ok := byName[name]
		if !ok {
			role, err = r.CreateRole(ctx, by, name, tpl.Description)
			if err != nil {
				return nil, err
			}
			byName[name] = role
		}
		if err := r.SetRolePermissions(ctx, by, role.ID, grants); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

func templateGrants(tpl RoleTemplate, ids map[string]int64) ([]RoleGrant, error) {
	grants := make([]RoleGrant, 0, len(tpl.Allow)+len(tpl.Deny))
	add := func(keys []string, granted bool) error {
		for _, raw := range keys {
			perm, err := shared.ParsePermission(raw)
			if err != nil {
				return fmt.Errorf("%w: role %s: %v", shared.ErrValidation, tpl.Name, err)
			}
			id, ok := ids[perm.Key()]
			if !ok {
				return fmt.Errorf("%w: role %s: unknown permission %s", shared.ErrValidation, tpl.Name, perm.Key())
			}
			grants = append(grants, RoleGrant{PermissionID: id, Granted: granted})
		}
		return nil
	}
	if err := add(tpl.Allow, true); err != nil {
		return nil, err
	}
	if err := add(tpl.Deny, false); err != nil {
		return nil, err
	}
	return grants, nil
}
