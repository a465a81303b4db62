package workflow

import (
	"context"
	"fmt"
	"strconv"
)

// EffectFunc runs after a transition commits. Its error is logged, never returned
// to the caller of Transition.
type EffectFunc func(ctx context.Context, ev Event) error

// Effects maps side effect names to their implementation.
type Effects map[SideEffect]EffectFunc

// NewEffects builds the notification and counter effects.
func NewEffects(store Store, notifier Notifier) Effects {
	return Effects{
		EffectNotifyOwner:             notifyEffect(notifier, func(e Entity) int64 { return e.OwnerID }),
		EffectNotifyAssignee:          notifyEffect(notifier, func(e Entity) int64 { return e.AssigneeID }),
		EffectIncrementJobSubmissions: counterEffect(store, CounterSubmissions),
		EffectIncrementJobPlacements:  counterEffect(store, CounterPlacements),
		EffectIncrementJobApplicants:  counterEffect(store, CounterApplicants),
	}
}

// EventKind is the notification kind emitted for a transition, e.g. "submission.placed".
func EventKind(kind Kind, to Status) string {
	return string(kind) + "." + string(to)
}

func notifyEffect(notifier Notifier, recipient func(Entity) int64) EffectFunc {
	return func(ctx context.Context, ev Event) error {
		if notifier == nil {
			return nil
		}
		to := recipient(ev.Entity)
		if to == 0 || to == ev.ActorID {
			return nil
		}
		return notifier.Notify(ctx, to, EventKind(ev.Entity.Kind, ev.To), eventPayload(ev))
	}
}

func counterEffect(store Store, counter JobCounter) EffectFunc {
	return func(ctx context.Context, ev Event) error {
		if ev.Entity.ParentID == 0 {
			return fmt.Errorf("workflow: %s %d has no job", ev.Entity.Kind, ev.Entity.ID)
		}
		return store.IncrementJobCounter(ctx, ev.Entity.ParentID, counter)
	}
}

func eventPayload(ev Event) map[string]any {
	payload := map[string]any{
		"entity_kind": string(ev.Entity.Kind),
		"entity_id":   strconv.FormatInt(ev.Entity.ID, 10),
		"from":        string(ev.From),
		"to":          string(ev.To),
		"actor_id":    ev.ActorID,
		"audit_id":    ev.AuditID,
		"trace_id":    ev.TraceID.String(),
	}
	if ev.Comment != "" {
		payload["comment"] = ev.Comment
	}
	return payload
}
