package workflow

import (
	"context"

	"github.com/talentdesk/talentdesk/internal/audit"
)

// JobCounter names a denormalised counter on jobs.
type JobCounter string

const (
	CounterSubmissions JobCounter = "submissions_count"
	CounterPlacements  JobCounter = "placements_count"
	CounterApplicants  JobCounter = "applicants_count"
)

// Store loads entities and persists status changes.
type Store interface {
	// Load returns shared.ErrNotFound when the entity does not exist.
	Load(ctx context.Context, kind Kind, id int64) (Entity, error)
	// WithTx returns ErrConcurrentUpdate when the transaction lost a serialization race.
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	IncrementJobCounter(ctx context.Context, jobID int64, counter JobCounter) error
}

// TxStore is the transactional half of Store.
type TxStore interface {
	// CompareAndSetStatus writes to only while the stored status still equals from.
	CompareAndSetStatus(ctx context.Context, kind Kind, id int64, from, to Status) (bool, error)
	AppendAudit(ctx context.Context, e audit.Entry) (int64, error)
}

// Authorizer resolves permissions for the acting user.
type Authorizer interface {
	Can(ctx context.Context, actorID int64, module, action string) (bool, error)
	Require(ctx context.Context, actorID int64, module, action string) error
}

// Notifier delivers user notifications. Implementations must not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, actorID int64, eventKind string, payload map[string]any) error
}
