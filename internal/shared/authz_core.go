package shared

import (
	"fmt"
	"strings"
)

// Permission is a named (module, action) capability.
type Permission struct {
	Module string `json:"module"`
	Action string `json:"action"`
}

// Perm builds a Permission.
func Perm(module, action string) Permission {
	return Permission{Module: module, Action: action}
}

// Key renders the permission as "module.action".
func (p Permission) Key() string {
	return p.Module + "." + p.Action
}

func (p Permission) String() string {
	return p.Key()
}

// IsZero reports whether the permission is unset.
func (p Permission) IsZero() bool {
	return p.Module == "" && p.Action == ""
}

// ParsePermission parses "module.action". Only the first dot separates the parts.
func ParsePermission(raw string) (Permission, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	module, action, ok := strings.Cut(raw, ".")
	if !ok || module == "" || action == "" {
		return Permission{}, fmt.Errorf("%w: permission %q must look like module.action", ErrValidation, raw)
	}
	return Permission{Module: module, Action: action}, nil
}

// Core platform permissions.
var (
	PermRolesView = Perm("roles", "view")
	PermRolesEdit = Perm("roles", "edit")

	PermPermissionsView = Perm("permissions", "view")
	PermPermissionsEdit = Perm("permissions", "edit")

	PermAuditView = Perm("audit", "view")
)

// CatalogEntry describes a permission shipped with the application.
type CatalogEntry struct {
	Permission  Permission
	Description string
}

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []CatalogEntry {
	return []CatalogEntry{
		{PermRolesView, "View roles and their permissions"},
		{PermRolesEdit, "Create, delete and change roles"},
		{PermPermissionsView, "View the permission catalog and actor overrides"},
		{PermPermissionsEdit, "Grant, revoke and reset actor overrides"},
		{PermAuditView, "View entity history"},
	}
}

// Catalog returns every permission known to the application.
func Catalog() []CatalogEntry {
	out := CoreScopes()
	out = append(out, StaffingScopes()...)
	return out
}
