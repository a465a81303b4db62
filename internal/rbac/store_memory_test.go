package rbac

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talentdesk/talentdesk/internal/audit"
	"github.com/talentdesk/talentdesk/internal/shared"
)

type memoryStore struct {
	mu        sync.Mutex
	nextID    int64
	roles     map[int64]Role
	perms     map[int64]Permission
	edges     map[int64]map[int64]bool
	actors    map[int64]int64
	overrides map[int64]map[int64]Override
	entries   []audit.Entry
	loads     atomic.Int64
	loadDelay time.Duration
	loadErr   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		nextID:    100,
		roles:     map[int64]Role{},
		perms:     map[int64]Permission{},
		edges:     map[int64]map[int64]bool{},
		actors:    map[int64]int64{},
		overrides: map[int64]map[int64]Override{},
	}
}

func (s *memoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memoryStore) addRole(name string, system bool) Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	role := Role{ID: s.id(), Name: name, IsSystem: system}
	s.roles[role.ID] = role
	return role
}

func (s *memoryStore) addPermission(p shared.Permission) Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	perm := Permission{ID: s.id(), Module: p.Module, Action: p.Action}
	s.perms[perm.ID] = perm
	return perm
}

func (s *memoryStore) setEdge(roleID int64, perm Permission, granted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.edges[roleID] == nil {
		s.edges[roleID] = map[int64]bool{}
	}
	s.edges[roleID][perm.ID] = granted
}

func (s *memoryStore) addActor(actorID, roleID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actors[actorID] = roleID
}

func (s *memoryStore) auditEntries() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Entry(nil), s.entries...)
}

func (s *memoryStore) LoadGrants(_ context.Context, actorID int64) (Grants, error) {
	s.loads.Add(1)
	if s.loadDelay > 0 {
		time.Sleep(s.loadDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return Grants{}, s.loadErr
	}
	roleID, ok := s.actors[actorID]
	if !ok {
		return Grants{}, shared.ErrNotFound
	}
	g := Grants{ActorID: actorID, RoleID: roleID, Role: map[string]bool{}, Overrides: map[string]bool{}}
	for permID, granted := range s.edges[roleID] {
		g.Role[s.perms[permID].Key()] = granted
	}
	for permID, o := range s.overrides[actorID] {
		g.Overrides[s.perms[permID].Key()] = o.Granted
	}
	return g, nil
}

func (s *memoryStore) GetRole(_ context.Context, id int64) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (s *memoryStore) ListRoles(context.Context) ([]Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, role)
	}
	return out, nil
}

func (s *memoryStore) ListPermissions(context.Context) ([]Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Permission, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, p)
	}
	return out, nil
}

func (s *memoryStore) FindPermission(_ context.Context, perm shared.Permission) (Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.perms {
		if p.Module == perm.Module && p.Action == perm.Action {
			return p, nil
		}
	}
	return Permission{}, fmt.Errorf("%w: permission %s", shared.ErrNotFound, perm.Key())
}

func (s *memoryStore) EnsurePermission(ctx context.Context, perm shared.Permission, description string) (Permission, error) {
	if p, err := s.FindPermission(ctx, perm); err == nil {
		return p, nil
	}
	p := s.addPermission(perm)
	p.Description = description
	return p, nil
}

func (s *memoryStore) ListOverrides(_ context.Context, actorID int64) ([]Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Override, 0, len(s.overrides[actorID]))
	for _, o := range s.overrides[actorID] {
		out = append(out, o)
	}
	return out, nil
}

// WithTx serialises transactions and restores the previous state when fn fails.
func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.clone()
	if err := fn(ctx, &memoryTx{s: s}); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type memoryState struct {
	roles     map[int64]Role
	edges     map[int64]map[int64]bool
	actors    map[int64]int64
	overrides map[int64]map[int64]Override
	entries   []audit.Entry
}

func (s *memoryStore) clone() memoryState {
	st := memoryState{
		roles:     map[int64]Role{},
		edges:     map[int64]map[int64]bool{},
		actors:    map[int64]int64{},
		overrides: map[int64]map[int64]Override{},
		entries:   append([]audit.Entry(nil), s.entries...),
	}
	for k, v := range s.roles {
		st.roles[k] = v
	}
	for k, v := range s.edges {
		inner := map[int64]bool{}
		for pk, pv := range v {
			inner[pk] = pv
		}
		st.edges[k] = inner
	}
	for k, v := range s.actors {
		st.actors[k] = v
	}
	for k, v := range s.overrides {
		inner := map[int64]Override{}
		for pk, pv := range v {
			inner[pk] = pv
		}
		st.overrides[k] = inner
	}
	return st
}

func (s *memoryStore) restore(st memoryState) {
	s.roles, s.edges, s.actors, s.overrides, s.entries = st.roles, st.edges, st.actors, st.overrides, st.entries
}

type memoryTx struct {
	s *memoryStore
}

func (t *memoryTx) ActorRole(_ context.Context, actorID int64) (int64, error) {
	roleID, ok := t.s.actors[actorID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return roleID, nil
}

func (t *memoryTx) GetOverride(_ context.Context, actorID, permissionID int64) (Override, bool, error) {
	o, ok := t.s.overrides[actorID][permissionID]
	return o, ok, nil
}

func (t *memoryTx) UpsertOverride(_ context.Context, o Override) error {
	if t.s.overrides[o.ActorID] == nil {
		t.s.overrides[o.ActorID] = map[int64]Override{}
	}
	t.s.overrides[o.ActorID][o.PermissionID] = o
	return nil
}

func (t *memoryTx) DeleteOverride(_ context.Context, actorID, permissionID int64) error {
	delete(t.s.overrides[actorID], permissionID)
	return nil
}

func (t *memoryTx) LockRole(_ context.Context, roleID int64) (Role, error) {
	role, ok := t.s.roles[roleID]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (t *memoryTx) RolePermissions(_ context.Context, roleID int64) ([]RolePermission, error) {
	var out []RolePermission
	for permID, granted := range t.s.edges[roleID] {
		out = append(out, RolePermission{RoleID: roleID, PermissionID: permID, Granted: granted})
	}
	return out, nil
}

func (t *memoryTx) ReplaceRolePermissions(_ context.Context, roleID int64, edges []RolePermission) error {
	next := map[int64]bool{}
	for _, e := range edges {
		next[e.PermissionID] = e.Granted
	}
	t.s.edges[roleID] = next
	return nil
}

func (t *memoryTx) CountRoleHolders(_ context.Context, roleID int64) (int, error) {
	n := 0
	for _, r := range t.s.actors {
		if r == roleID {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) InsertRole(_ context.Context, role Role) (Role, error) {
	for _, existing := range t.s.roles {
		if existing.Name == role.Name {
			return Role{}, fmt.Errorf("%w: role %q already exists", shared.ErrValidation, role.Name)
		}
	}
	role.ID = t.s.id()
	t.s.roles[role.ID] = role
	return role, nil
}

func (t *memoryTx) DeleteRole(_ context.Context, roleID int64) error {
	delete(t.s.roles, roleID)
	delete(t.s.edges, roleID)
	return nil
}

func (t *memoryTx) SetActorRole(_ context.Context, actorID, roleID int64) error {
	t.s.actors[actorID] = roleID
	return nil
}

func (t *memoryTx) AppendAudit(_ context.Context, e audit.Entry) (int64, error) {
	if err := audit.Validate(e); err != nil {
		return 0, err
	}
	e.ID = int64(len(t.s.entries) + 1)
	t.s.entries = append(t.s.entries, e)
	return e.ID, nil
}
