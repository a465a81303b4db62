package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/talentdesk/talentdesk/internal/audit"
	"github.com/talentdesk/talentdesk/internal/shared"
)

type entityKey struct {
	kind Kind
	id   int64
}

type memoryStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	entities map[entityKey]Entity
	counters map[int64]map[JobCounter]int
	entries  []audit.Entry
	auditErr error
	beforeTx func()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		entities: map[entityKey]Entity{},
		counters: map[int64]map[JobCounter]int{},
	}
}

func (s *memoryStore) put(e Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entityKey{kind: e.Kind, id: e.ID}] = e
}

func (s *memoryStore) status(kind Kind, id int64) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entities[entityKey{kind: kind, id: id}].Status
}

func (s *memoryStore) counter(jobID int64, c JobCounter) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[jobID][c]
}

func (s *memoryStore) auditEntries() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Entry(nil), s.entries...)
}

func (s *memoryStore) Load(_ context.Context, kind Kind, id int64) (Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entityKey{kind: kind, id: id}]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s %d", shared.ErrNotFound, kind, id)
	}
	return e, nil
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if s.beforeTx != nil {
		s.beforeTx()
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	tx := &memoryTx{s: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, status := range tx.writes {
		e := s.entities[key]
		e.Status = status
		s.entities[key] = e
	}
	s.entries = append(s.entries, tx.entries...)
	return nil
}

func (s *memoryStore) IncrementJobCounter(_ context.Context, jobID int64, counter JobCounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters[jobID] == nil {
		s.counters[jobID] = map[JobCounter]int{}
	}
	s.counters[jobID][counter]++
	return nil
}

// memoryTx buffers writes until commit.
type memoryTx struct {
	s       *memoryStore
	writes  map[entityKey]Status
	entries []audit.Entry
}

func (t *memoryTx) CompareAndSetStatus(_ context.Context, kind Kind, id int64, from, to Status) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	key := entityKey{kind: kind, id: id}
	e, ok := t.s.entities[key]
	if !ok || e.Status != from {
		return false, nil
	}
	if t.writes == nil {
		t.writes = map[entityKey]Status{}
	}
	t.writes[key] = to
	return true, nil
}

func (t *memoryTx) AppendAudit(_ context.Context, e audit.Entry) (int64, error) {
	if t.s.auditErr != nil {
		return 0, t.s.auditErr
	}
	if err := audit.Validate(e); err != nil {
		return 0, err
	}
	t.s.mu.Lock()
	e.ID = int64(len(t.s.entries) + len(t.entries) + 1)
	t.s.mu.Unlock()
	t.entries = append(t.entries, e)
	return e.ID, nil
}

type allowList map[int64]map[string]bool

func (a allowList) Can(_ context.Context, actorID int64, module, action string) (bool, error) {
	return a[actorID][shared.Perm(module, action).Key()], nil
}

func (a allowList) Require(ctx context.Context, actorID int64, module, action string) error {
	ok, _ := a.Can(ctx, actorID, module, action)
	if !ok {
		return &shared.AuthorizationError{ActorID: actorID, Permission: shared.Perm(module, action)}
	}
	return nil
}

func allow(perms ...shared.Permission) map[string]bool {
	out := make(map[string]bool, len(perms))
	for _, p := range perms {
		out[p.Key()] = true
	}
	return out
}

type notification struct {
	actorID   int64
	eventKind string
	payload   map[string]any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, actorID int64, eventKind string, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification{actorID: actorID, eventKind: eventKind, payload: payload})
	return nil
}

var errDeliveryDown = errors.New("delivery down")
