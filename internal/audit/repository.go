package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/talentdesk/talentdesk/internal/shared"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx so appends can join a caller's transaction.
type DBTX interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository provides PostgreSQL backed persistence for audit_entries. It is the only
// writer of that table and exposes no update or delete.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Validate checks the fields every entry must carry.
func Validate(e Entry) error {
	if strings.TrimSpace(e.EntityKind) == "" || strings.TrimSpace(e.EntityID) == "" || strings.TrimSpace(e.Action) == "" {
		return fmt.Errorf("%w: audit entry requires entity kind, entity id and action", shared.ErrValidation)
	}
	return nil
}

// Append writes the entry using the pool.
func (r *Repository) Append(ctx context.Context, e Entry) (int64, error) {
	return r.AppendTx(ctx, r.pool, e)
}

// AppendTx writes the entry through q, typically the caller's open transaction.
func (r *Repository) AppendTx(ctx context.Context, q DBTX, e Entry) (int64, error) {
	if err := Validate(e); err != nil {
		return 0, err
	}
	before, err := marshalPayload(e.Before)
	if err != nil {
		return 0, err
	}
	after, err := marshalPayload(e.After)
	if err != nil {
		return 0, err
	}
	trace := e.TraceID
	if trace == uuid.Nil {
		trace = uuid.New()
	}
	var at pgtype.Timestamptz
	if !e.At.IsZero() {
		at = pgtype.Timestamptz{Time: e.At, Valid: true}
	}
	var id int64
	err = q.QueryRow(ctx, `INSERT INTO audit_entries (actor_id, at, entity_kind, entity_id, action, description, before, after, trace_id)
VALUES ($1, COALESCE($2, clock_timestamp()), $3, $4, $5, $6, $7, $8, $9)
RETURNING id`, e.ActorID, at, e.EntityKind, e.EntityID, e.Action, e.Description, before, after, trace).Scan(&id)
	if err != nil {
		return 0, shared.Unavailable("audit append", err)
	}
	return id, nil
}

// ListByEntity returns entries for an entity newest first. limit <= 0 returns everything.
func (r *Repository) ListByEntity(ctx context.Context, kind, id string, limit, offset int) ([]Entry, error) {
	query := `SELECT id, actor_id, at, entity_kind, entity_id, action, description, before, after, trace_id
FROM audit_entries WHERE entity_kind = $1 AND entity_id = $2
ORDER BY at DESC, id DESC`
	args := []any{kind, id}
	if limit > 0 {
		query += ` LIMIT $3 OFFSET $4`
		args = append(args, limit, offset)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Unavailable("audit list", err)
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var (
			e             Entry
			before, after []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.At, &e.EntityKind, &e.EntityID, &e.Action, &e.Description, &before, &after, &e.TraceID); err != nil {
			return nil, shared.Unavailable("audit scan", err)
		}
		if e.Before, err = unmarshalPayload(before); err != nil {
			return nil, err
		}
		if e.After, err = unmarshalPayload(after); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Unavailable("audit list", err)
	}
	return entries, nil
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("audit: encode payload: %w", err)
	}
	return raw, nil
}

func unmarshalPayload(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("audit: decode payload: %w", err)
	}
	return payload, nil
}
