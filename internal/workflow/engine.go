package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talentdesk/talentdesk/internal/audit"
	"github.com/talentdesk/talentdesk/internal/observability"
	"github.com/talentdesk/talentdesk/internal/shared"
)

// Engine executes transitions: legality, authorization, compare-and-set with an
// audit entry in one transaction, then side effects.
type Engine struct {
	registry *Registry
	store    Store
	authz    Authorizer
	effects  Effects
	logger   *slog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewEngine wires the engine. The open_job cascade is always available.
func NewEngine(registry *Registry, store Store, authz Authorizer, effects Effects, logger *slog.Logger) *Engine {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	all := make(Effects, len(effects)+1)
	for name, fn := range effects {
		all[name] = fn
	}
	e := &Engine{registry: registry, store: store, authz: authz, effects: all, logger: logger, now: time.Now}
	if _, ok := all[EffectOpenJob]; !ok {
		all[EffectOpenJob] = e.openJob
	}
	return e
}

// WithMetrics attaches transition collectors.
func (e *Engine) WithMetrics(m *observability.Metrics) *Engine {
	e.metrics = m
	return e
}

// WithNow overrides the clock.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// Registry exposes the declared machines.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Transition moves entity id of kind to target on behalf of actorID.
func (e *Engine) Transition(ctx context.Context, actorID int64, kind Kind, id int64, target Status, tc Context) (Result, error) {
	res, err := e.transition(ctx, actorID, kind, id, target, tc)
	e.metrics.ObserveTransition(string(kind), outcome(res, err))
	return res, err
}

func (e *Engine) transition(ctx context.Context, actorID int64, kind Kind, id int64, target Status, tc Context) (Result, error) {
	if _, ok := e.registry.Machine(kind); !ok {
		return Result{}, fmt.Errorf("%w: unknown workflow kind %q", shared.ErrNotFound, kind)
	}
	entity, err := e.store.Load(ctx, kind, id)
	if err != nil {
		return Result{}, shared.Unavailable("workflow load", err)
	}
	from := entity.Status
	if tc.ExpectedStatus != "" && tc.ExpectedStatus != from {
		return Result{}, &shared.IllegalTransitionError{Kind: string(kind), From: string(tc.ExpectedStatus), To: string(target), Stale: true}
	}
	edge, ok := e.registry.Lookup(kind, from, target)
	if !ok {
		return Result{}, &shared.IllegalTransitionError{Kind: string(kind), From: string(from), To: string(target)}
	}
	if err := e.authz.Require(ctx, actorID, edge.Permission.Module, edge.Permission.Action); err != nil {
		return Result{}, err
	}
	if from == target {
		return Result{From: from, To: target, NoOp: true}, nil
	}
	return e.apply(ctx, actorID, entity, edge, tc)
}

// apply persists an authorized edge and runs its side effects.
func (e *Engine) apply(ctx context.Context, actorID int64, entity Entity, edge Edge, tc Context) (Result, error) {
	kind := entity.Kind
	trace := uuid.New()
	at := e.now().UTC()
	after := map[string]any{"status": string(edge.To)}
	if tc.Comment != "" {
		after["comment"] = tc.Comment
	}
	if len(tc.Payload) > 0 {
		after["payload"] = tc.Payload
	}
	stale := &shared.IllegalTransitionError{Kind: string(kind), From: string(edge.From), To: string(edge.To), Stale: true}

	var auditID int64
	err := e.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		swapped, err := tx.CompareAndSetStatus(ctx, kind, entity.ID, edge.From, edge.To)
		if err != nil {
			return err
		}
		if !swapped {
			return stale
		}
		auditID, err = tx.AppendAudit(ctx, audit.Entry{
			ActorID:     actorID,
			At:          at,
			EntityKind:  string(kind),
			EntityID:    strconv.FormatInt(entity.ID, 10),
			Action:      audit.ActionTransition,
			Description: describe(edge, tc.Comment),
			Before:      map[string]any{"status": string(edge.From)},
			After:       after,
			TraceID:     trace,
		})
		return err
	})
	if errors.Is(err, ErrConcurrentUpdate) {
		return Result{}, stale
	}
	if err != nil {
		return Result{}, shared.Unavailable("workflow transition", err)
	}

	entity.Status = edge.To
	e.runEffects(ctx, edge, Event{
		ActorID: actorID,
		Entity:  entity,
		From:    edge.From,
		To:      edge.To,
		AuditID: auditID,
		TraceID: trace,
		Comment: tc.Comment,
		At:      at,
	})
	return Result{AuditID: auditID, From: edge.From, To: edge.To, TraceID: trace}, nil
}

func (e *Engine) runEffects(ctx context.Context, edge Edge, ev Event) {
	for _, name := range edge.Effects {
		fn, ok := e.effects[name]
		if !ok {
			e.logger.Warn("workflow side effect not registered", slog.String("effect", string(name)))
			e.metrics.ObserveSideEffectFailure(string(name))
			continue
		}
		if err := fn(ctx, ev); err != nil {
			e.logger.Warn("workflow side effect failed",
				slog.String("effect", string(name)),
				slog.String("kind", string(ev.Entity.Kind)),
				slog.Int64("entity_id", ev.Entity.ID),
				slog.String("trace_id", ev.TraceID.String()),
				slog.Any("error", err))
			e.metrics.ObserveSideEffectFailure(string(name))
		}
	}
}

// openJob opens the job whose approval was just granted. The approval edge is the
// authorization for the cascade.
func (e *Engine) openJob(ctx context.Context, ev Event) error {
	job, err := e.store.Load(ctx, KindJobOperation, ev.Entity.ID)
	if err != nil {
		return err
	}
	if job.Status == JobOpen {
		return nil
	}
	edge, ok := e.registry.Lookup(KindJobOperation, job.Status, JobOpen)
	if !ok {
		return &shared.IllegalTransitionError{Kind: string(KindJobOperation), From: string(job.Status), To: string(JobOpen)}
	}
	_, err = e.apply(ctx, ev.ActorID, job, edge, Context{Comment: "opened on approval"})
	e.metrics.ObserveTransition(string(KindJobOperation), outcome(Result{}, err))
	return err
}

// Available lists the edges out of the entity's current status the actor may take.
func (e *Engine) Available(ctx context.Context, actorID int64, kind Kind, id int64) (Entity, []Edge, error) {
	if _, ok := e.registry.Machine(kind); !ok {
		return Entity{}, nil, fmt.Errorf("%w: unknown workflow kind %q", shared.ErrNotFound, kind)
	}
	entity, err := e.store.Load(ctx, kind, id)
	if err != nil {
		return Entity{}, nil, shared.Unavailable("workflow load", err)
	}
	var out []Edge
	for _, edge := range e.registry.Targets(kind, entity.Status) {
		ok, err := e.authz.Can(ctx, actorID, edge.Permission.Module, edge.Permission.Action)
		if err != nil {
			return Entity{}, nil, err
		}
		if ok {
			out = append(out, edge)
		}
	}
	return entity, out, nil
}

func describe(edge Edge, comment string) string {
	desc := string(edge.From) + " -> " + string(edge.To)
	if c := strings.TrimSpace(comment); c != "" {
		desc += ": " + c
	}
	return desc
}

func outcome(res Result, err error) string {
	var transition *shared.IllegalTransitionError
	switch {
	case err == nil && res.NoOp:
		return "noop"
	case err == nil:
		return "ok"
	case errors.As(err, &transition) && transition.Stale:
		return "stale"
	case errors.As(err, &transition):
		return "illegal"
	case shared.IsForbidden(err):
		return "forbidden"
	default:
		return "error"
	}
}
