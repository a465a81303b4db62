package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/talentdesk/talentdesk/internal/audit"
	"github.com/talentdesk/talentdesk/internal/shared"
)

const (
	adminID     int64 = 1
	recruiterID int64 = 7
)

type fixture struct {
	store     *memoryStore
	resolver  *Resolver
	recruiter Role
	approve   Permission
	viewJobs  Permission
}

func newFixture(t *testing.T, cache Cache) fixture {
	t.Helper()
	store := newMemoryStore()
	recruiter := store.addRole("recruiter", false)
	approve := store.addPermission(shared.PermJobsApprove)
	viewJobs := store.addPermission(shared.PermJobsView)
	store.setEdge(recruiter.ID, viewJobs, true)
	store.addActor(recruiterID, recruiter.ID)
	resolver := NewResolver(store, cache, nil).WithNow(func() time.Time {
		return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	})
	return fixture{store: store, resolver: resolver, recruiter: recruiter, approve: approve, viewJobs: viewJobs}
}

func TestGrantThenResetRestoresRoleDefault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	ok, err := f.resolver.Can(ctx, recruiterID, "jobs", "approve")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, f.resolver.Grant(ctx, adminID, recruiterID, shared.PermJobsApprove))
	ok, err = f.resolver.Can(ctx, recruiterID, "jobs", "approve")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.resolver.ResetToRoleDefault(ctx, adminID, recruiterID, shared.PermJobsApprove))
	ok, err = f.resolver.Can(ctx, recruiterID, "jobs", "approve")
	require.NoError(t, err)
	require.False(t, ok)

	entries := f.store.auditEntries()
	require.Len(t, entries, 2)
	require.Equal(t, audit.ActionPermissionGrant, entries[0].Action)
	require.Equal(t, audit.ActionPermissionReset, entries[1].Action)
	require.Equal(t, audit.EntityActor, entries[0].EntityKind)
	require.Equal(t, "7", entries[0].EntityID)
	require.Equal(t, adminID, entries[0].ActorID)
	require.Nil(t, entries[0].Before["override"])
	require.Equal(t, "allow", entries[0].After["override"])
}

func TestDecideExplainsSource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	d, err := f.resolver.Decide(ctx, recruiterID, "jobs", "view")
	require.NoError(t, err)
	require.Equal(t, Decision{Allowed: true, Source: SourceRole}, d)

	require.NoError(t, f.resolver.Revoke(ctx, adminID, recruiterID, shared.PermJobsView))
	d, err = f.resolver.Decide(ctx, recruiterID, "JOBS", " view ")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, SourceOverride, d.Source)

	d, err = f.resolver.Decide(ctx, recruiterID, "jobs", "nonexistent")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, SourceDefault, d.Source)
}

func TestUnknownActorIsDenied(t *testing.T) {
	f := newFixture(t, nil)
	d, err := f.resolver.Decide(context.Background(), 999, "jobs", "view")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, SourceDefault, d.Source)
}

func TestRequireReturnsAuthorizationError(t *testing.T) {
	f := newFixture(t, nil)
	err := f.resolver.Require(context.Background(), recruiterID, "jobs", "approve")
	var authz *shared.AuthorizationError
	require.ErrorAs(t, err, &authz)
	require.Equal(t, recruiterID, authz.ActorID)
	require.Equal(t, "jobs.approve", authz.Permission.Key())
	require.NoError(t, f.resolver.RequirePermission(context.Background(), recruiterID, shared.PermJobsView))
}

func TestDecisionsAreCachedUntilMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	d, err := f.resolver.Decide(ctx, recruiterID, "jobs", "view")
	require.NoError(t, err)
	require.False(t, d.CacheHit)
	d, err = f.resolver.Decide(ctx, recruiterID, "jobs", "approve")
	require.NoError(t, err)
	require.True(t, d.CacheHit)
	require.EqualValues(t, 1, f.store.loads.Load())

	require.NoError(t, f.resolver.Grant(ctx, adminID, recruiterID, shared.PermJobsApprove))
	d, err = f.resolver.Decide(ctx, recruiterID, "jobs", "approve")
	require.NoError(t, err)
	require.False(t, d.CacheHit)
	require.True(t, d.Allowed)
	require.EqualValues(t, 2, f.store.loads.Load())
}

func TestNoOpMutationsSkipAuditAndInvalidation(t *testing.T) {
	ctx := context.Background()
	cache := &spyCache{Cache: NewMemoryCache()}
	f := newFixture(t, cache)

	require.NoError(t, f.resolver.Grant(ctx, adminID, recruiterID, shared.PermJobsApprove))
	require.NoError(t, f.resolver.Grant(ctx, adminID, recruiterID, shared.PermJobsApprove))
	require.NoError(t, f.resolver.ResetToRoleDefault(ctx, adminID, recruiterID, shared.PermJobsView))
	require.NoError(t, f.resolver.AssignRole(ctx, adminID, recruiterID, f.recruiter.ID))

	require.Len(t, f.store.auditEntries(), 1)
	require.Equal(t, 1, cache.clears)
}

func TestInvalidationFollowsAudit(t *testing.T) {
	ctx := context.Background()
	cache := &spyCache{Cache: NewMemoryCache()}
	f := newFixture(t, cache)
	cache.onClear = func() {
		require.Len(t, f.store.auditEntries(), 1)
	}
	require.NoError(t, f.resolver.Revoke(ctx, adminID, recruiterID, shared.PermJobsView))
	require.Equal(t, 1, cache.clears)
}

func TestCacheClearFailureSurfacesAsStorageError(t *testing.T) {
	ctx := context.Background()
	cache := &spyCache{Cache: NewMemoryCache(), clearErr: errors.New("redis down")}
	f := newFixture(t, cache)

	err := f.resolver.Grant(ctx, adminID, recruiterID, shared.PermJobsApprove)
	require.True(t, shared.IsStorageUnavailable(err))
	require.Len(t, f.store.auditEntries(), 1)
}

func TestCacheReadErrorFallsBackToStore(t *testing.T) {
	cache := &spyCache{Cache: NewMemoryCache(), getErr: errors.New("timeout")}
	f := newFixture(t, cache)

	ok, err := f.resolver.Can(context.Background(), recruiterID, "jobs", "view")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStoreFailureIsStorageUnavailable(t *testing.T) {
	f := newFixture(t, nil)
	f.store.loadErr = errors.New("connection refused")

	_, err := f.resolver.Can(context.Background(), recruiterID, "jobs", "view")
	require.True(t, shared.IsStorageUnavailable(err))
}

func TestConcurrentMissesLoadOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.store.loadDelay = 50 * time.Millisecond

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := f.resolver.Can(context.Background(), recruiterID, "jobs", "view")
			require.NoError(t, err)
			require.True(t, ok)
		}()
	}
	close(start)
	wg.Wait()
	require.EqualValues(t, 1, f.store.loads.Load())
}

func TestSetRolePermissionsReplacesEdges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	ok, err := f.resolver.Can(ctx, recruiterID, "jobs", "view")
	require.NoError(t, err)
	require.True(t, ok)

	err = f.resolver.SetRolePermissions(ctx, adminID, f.recruiter.ID, []RoleGrant{{PermissionID: f.approve.ID, Granted: true}})
	require.NoError(t, err)

	ok, err = f.resolver.Can(ctx, recruiterID, "jobs", "approve")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.resolver.Can(ctx, recruiterID, "jobs", "view")
	require.NoError(t, err)
	require.False(t, ok)

	entries := f.store.auditEntries()
	require.Len(t, entries, 1)
	require.Equal(t, audit.ActionRolePermissions, entries[0].Action)
	require.Equal(t, map[string]bool{"jobs.view": true}, entries[0].Before["permissions"])
	require.Equal(t, map[string]bool{"jobs.approve": true}, entries[0].After["permissions"])
}

func TestSetRolePermissionsRejectsUnknownAndDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	err := f.resolver.SetRolePermissions(ctx, adminID, f.recruiter.ID, []RoleGrant{{PermissionID: 4242, Granted: true}})
	require.ErrorIs(t, err, shared.ErrValidation)

	err = f.resolver.SetRolePermissions(ctx, adminID, f.recruiter.ID, []RoleGrant{
		{PermissionID: f.approve.ID, Granted: true},
		{PermissionID: f.approve.ID, Granted: false},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, f.store.auditEntries())
}

func TestSystemRolesAreImmutable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	admin := f.store.addRole("admin", true)

	err := f.resolver.SetRolePermissions(ctx, adminID, admin.ID, nil)
	var immutable *shared.ImmutableRoleError
	require.ErrorAs(t, err, &immutable)
	require.Equal(t, "admin", immutable.Name)

	err = f.resolver.DeleteRole(ctx, adminID, admin.ID)
	require.ErrorAs(t, err, &immutable)
	require.Empty(t, f.store.auditEntries())
}

func TestDeleteRoleInUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	err := f.resolver.DeleteRole(ctx, adminID, f.recruiter.ID)
	var inUse *shared.RoleInUseError
	require.ErrorAs(t, err, &inUse)
	require.Equal(t, 1, inUse.Holders)

	spare, err := f.resolver.CreateRole(ctx, adminID, "  sourcer ", "sources candidates")
	require.NoError(t, err)
	require.Equal(t, "sourcer", spare.Name)
	require.NoError(t, f.resolver.DeleteRole(ctx, adminID, spare.ID))

	_, err = f.store.GetRole(ctx, spare.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	entries := f.store.auditEntries()
	require.Len(t, entries, 2)
	require.Equal(t, audit.ActionRoleCreate, entries[0].Action)
	require.Equal(t, audit.ActionRoleDelete, entries[1].Action)
}

func TestCreateRoleValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.resolver.CreateRole(ctx, adminID, " ", "")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.resolver.CreateRole(ctx, adminID, "recruiter", "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAssignRoleChangesDecisions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	manager := f.store.addRole("manager", false)
	f.store.setEdge(manager.ID, f.approve, true)

	ok, err := f.resolver.Can(ctx, recruiterID, "jobs", "approve")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, f.resolver.AssignRole(ctx, adminID, recruiterID, manager.ID))
	ok, err = f.resolver.Can(ctx, recruiterID, "jobs", "approve")
	require.NoError(t, err)
	require.True(t, ok)

	err = f.resolver.AssignRole(ctx, adminID, recruiterID, 5555)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGrantUnknownPermissionOrActor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	err := f.resolver.Grant(ctx, adminID, recruiterID, shared.Perm("jobs", "teleport"))
	require.ErrorIs(t, err, shared.ErrNotFound)
	err = f.resolver.Grant(ctx, adminID, 999, shared.PermJobsApprove)
	require.ErrorIs(t, err, shared.ErrNotFound)
	err = f.resolver.Grant(ctx, adminID, recruiterID, shared.Permission{})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, f.store.auditEntries())
}

func TestEffectiveListsAllowedKeys(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.resolver.Grant(ctx, adminID, recruiterID, shared.PermJobsApprove))

	keys, err := f.resolver.Effective(ctx, recruiterID)
	require.NoError(t, err)
	require.Equal(t, []string{"jobs.approve", "jobs.view"}, keys)
}

type spyCache struct {
	Cache
	clears   int
	clearErr error
	getErr   error
	onClear  func()
}

func (c *spyCache) Get(ctx context.Context, gen uint64, actorID int64) (Grants, bool, error) {
	if c.getErr != nil {
		return Grants{}, false, c.getErr
	}
	return c.Cache.Get(ctx, gen, actorID)
}

func (c *spyCache) Clear(ctx context.Context) error {
	if c.onClear != nil {
		c.onClear()
	}
	if c.clearErr != nil {
		return c.clearErr
	}
	c.clears++
	return c.Cache.Clear(ctx)
}
