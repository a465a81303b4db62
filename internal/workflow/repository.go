package workflow

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

// binding maps a machine onto its table. Column names are constants, never input.
type binding struct {
	table    string
	status   string
	owner    string
	assignee string
	parent   string
}

var bindings = map[Kind]binding{
	KindSubmission:   {table: "submissions", status: "status", owner: "owner_id", assignee: "assignee_id", parent: "job_id"},
	KindJobApproval:  {table: "jobs", status: "approval_status", owner: "owner_id", assignee: "approver_id", parent: "NULL::bigint"},
	KindJobOperation: {table: "jobs", status: "status", owner: "owner_id", assignee: "approver_id", parent: "NULL::bigint"},
	KindCandidate:    {table: "candidates", status: "status", owner: "owner_id", assignee: "NULL::bigint", parent: "NULL::bigint"},
	KindInboxItem:    {table: "inbox_items", status: "status", owner: "NULL::bigint", assignee: "assignee_id", parent: "job_id"},
}

var counterColumns = map[JobCounter]struct{}{
	CounterSubmissions: {},
	CounterPlacements:  {},
	CounterApplicants:  {},
}

// Repository provides PostgreSQL backed persistence for entity statuses.
type Repository struct {
	pool  *pgxpool.Pool
	audit *audit.Repository
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, auditRepo *audit.Repository) *Repository {
	if auditRepo == nil {
		auditRepo = audit.NewRepository(pool)
	}
	return &Repository{pool: pool, audit: auditRepo}
}

var _ Store = (*Repository)(nil)

// Load reads the workflow view of an entity.
func (r *Repository) Load(ctx context.Context, kind Kind, id int64) (Entity, error) {
	b, ok := bindings[kind]
	if !ok {
		return Entity{}, fmt.Errorf("%w: unknown workflow kind %q", shared.ErrNotFound, kind)
	}
	query := fmt.Sprintf(`SELECT id, %s, COALESCE(%s, 0), COALESCE(%s, 0), COALESCE(%s, 0) FROM %s WHERE id = $1`,
		b.status, b.owner, b.assignee, b.parent, b.table)
	e := Entity{Kind: kind}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(&e.ID, &status, &e.OwnerID, &e.AssigneeID, &e.ParentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entity{}, fmt.Errorf("%w: %s %d", shared.ErrNotFound, kind, id)
	}
	if err != nil {
		return Entity{}, shared.Unavailable("workflow load", err)
	}
	e.Status = Status(status)
	return e, nil
}

// txOptions keeps transitions at ReadCommitted: the status compare-and-set re-checks
// the row after a concurrent commit, so writes to other dimensions of the same row
// do not fail the transition.
var txOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

const txAttempts = 3

// WithTx runs fn in a ReadCommitted transaction, retrying deadlock victims.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return retryOnConflict(txAttempts, func() error {
		return db.WithTxOptions(ctx, r.pool, txOptions, func(tx pgx.Tx) error {
			return fn(ctx, &txRepo{tx: tx, audit: r.audit})
		})
	})
}

// retryOnConflict reruns fn while it fails with a serialization or deadlock error.
// A conflict that survives every attempt is reported as ErrConcurrentUpdate.
func retryOnConflict(attempts int, fn func() error) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn()
		if !db.IsSerializationFailure(err) {
			return err
		}
	}
	return ErrConcurrentUpdate
}

// IncrementJobCounter bumps a denormalised counter on jobs.
func (r *Repository) IncrementJobCounter(ctx context.Context, jobID int64, counter JobCounter) error {
	if _, ok := counterColumns[counter]; !ok {
		return fmt.Errorf("%w: unknown job counter %q", shared.ErrValidation, counter)
	}
	query := fmt.Sprintf(`UPDATE jobs SET %s = %s + 1, updated_at = NOW() WHERE id = $1`, counter, counter)
	tag, err := r.pool.Exec(ctx, query, jobID)
	if err != nil {
		return shared.Unavailable("workflow job counter", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %d", shared.ErrNotFound, jobID)
	}
	return nil
}

type txRepo struct {
	tx    pgx.Tx
	audit *audit.Repository
}

func (t *txRepo) CompareAndSetStatus(ctx context.Context, kind Kind, id int64, from, to Status) (bool, error) {
	b, ok := bindings[kind]
	if !ok {
		return false, fmt.Errorf("%w: unknown workflow kind %q", shared.ErrNotFound, kind)
	}
	query := fmt.Sprintf(`UPDATE %s SET %s = $1, updated_at = NOW() WHERE id = $2 AND %s = $3`, b.table, b.status, b.status)
	tag, err := t.tx.Exec(ctx, query, string(to), id, string(from))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) AppendAudit(ctx context.Context, e audit.Entry) (int64, error) {
	return t.audit.AppendTx(ctx, t.tx, e)
}
