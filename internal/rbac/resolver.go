package rbac

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/talentdesk/talentdesk/internal/observability"
	"github.com/talentdesk/talentdesk/internal/shared"
)

// Resolver answers permission checks from cached grant snapshots and applies
// permission mutations. Every mutation invalidates the cache before it returns.
type Resolver struct {
	store   Store
	cache   Cache
	logger  *slog.Logger
	metrics *observability.Metrics
	loads   singleflight.Group
	now     func() time.Time
}

// NewResolver constructs a resolver. A nil cache falls back to a MemoryCache.
func NewResolver(store Store, cache Cache, logger *slog.Logger) *Resolver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, cache: cache, logger: logger, now: time.Now}
}

// WithMetrics attaches decision and invalidation collectors.
func (r *Resolver) WithMetrics(m *observability.Metrics) *Resolver {
	r.metrics = m
	return r
}

// WithNow overrides the clock used for override timestamps.
func (r *Resolver) WithNow(now func() time.Time) *Resolver {
	if now != nil {
		r.now = now
	}
	return r
}

// Decide resolves a permission for an actor: override, then role default, then deny.
// Unknown actors and unknown permissions are denied.
func (r *Resolver) Decide(ctx context.Context, actorID int64, module, action string) (Decision, error) {
	key := normalizeKey(module, action)
	grants, hit, err := r.grants(ctx, actorID)
	if errors.Is(err, shared.ErrNotFound) {
		d := Decision{Allowed: false, Source: SourceDefault}
		r.metrics.ObserveDecision(string(d.Source), d.Allowed, false)
		return d, nil
	}
	if err != nil {
		return Decision{}, err
	}
	allowed, source := grants.Resolve(key)
	d := Decision{Allowed: allowed, Source: source, CacheHit: hit}
	r.metrics.ObserveDecision(string(d.Source), d.Allowed, d.CacheHit)
	return d, nil
}

// Can reports whether the actor may perform module.action.
func (r *Resolver) Can(ctx context.Context, actorID int64, module, action string) (bool, error) {
	d, err := r.Decide(ctx, actorID, module, action)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// Require returns an AuthorizationError when the actor may not perform module.action.
func (r *Resolver) Require(ctx context.Context, actorID int64, module, action string) error {
	ok, err := r.Can(ctx, actorID, module, action)
	if err != nil {
		return err
	}
	if !ok {
		return &shared.AuthorizationError{ActorID: actorID, Permission: shared.Perm(normalize(module), normalize(action))}
	}
	return nil
}

// RequirePermission is Require for a catalog permission.
func (r *Resolver) RequirePermission(ctx context.Context, actorID int64, perm shared.Permission) error {
	return r.Require(ctx, actorID, perm.Module, perm.Action)
}

// Effective returns the keys of every permission the actor is currently allowed.
func (r *Resolver) Effective(ctx context.Context, actorID int64) ([]string, error) {
	grants, _, err := r.grants(ctx, actorID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(grants.Role)+len(grants.Overrides))
	out := make([]string, 0, len(grants.Role))
	for _, set := range []map[string]bool{grants.Overrides, grants.Role} {
		for key := range set {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			if allowed, _ := grants.Resolve(key); allowed {
				out = append(out, key)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *Resolver) grants(ctx context.Context, actorID int64) (Grants, bool, error) {
	gen, err := r.cache.Generation(ctx)
	if err != nil {
		r.logger.Warn("authz cache generation", slog.Int64("actor_id", actorID), slog.Any("error", err))
		g, err := r.store.LoadGrants(ctx, actorID)
		return g, false, shared.Unavailable("authz load grants", err)
	}
	cached, ok, err := r.cache.Get(ctx, gen, actorID)
	if err != nil {
		r.logger.Warn("authz cache read", slog.Int64("actor_id", actorID), slog.Any("error", err))
	} else if ok {
		return cached, true, nil
	}

	key := strconv.FormatUint(gen, 10) + ":" + strconv.FormatInt(actorID, 10)
	loadCtx := context.WithoutCancel(ctx)
	resultChan := r.loads.DoChan(key, func() (interface{}, error) {
		g, err := r.store.LoadGrants(loadCtx, actorID)
		if err != nil {
			return Grants{}, err
		}
		if err := r.cache.Put(loadCtx, gen, actorID, g); err != nil {
			r.logger.Warn("authz cache write", slog.Int64("actor_id", actorID), slog.Any("error", err))
		}
		return g, nil
	})
	select {
	case <-ctx.Done():
		return Grants{}, false, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return Grants{}, false, shared.Unavailable("authz load grants", res.Err)
		}
		return res.Val.(Grants), false, nil
	}
}

// invalidate runs after commit. It does not honour cancellation of ctx: a committed
// change must never be left behind a stale cache.
func (r *Resolver) invalidate(ctx context.Context) error {
	if err := r.cache.Clear(context.WithoutCancel(ctx)); err != nil {
		r.logger.Error("authz cache clear", slog.Any("error", err))
		return shared.Unavailable("authz cache clear", err)
	}
	r.metrics.ObserveInvalidation()
	return nil
}

// Invalidate drops every cached snapshot. Used after out-of-band catalog changes such as seeding.
func (r *Resolver) Invalidate(ctx context.Context) error {
	return r.invalidate(ctx)
}

func normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

func normalizeKey(module, action string) string {
	return shared.Perm(normalize(module), normalize(action)).Key()
}
