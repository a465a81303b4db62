package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// RepositoryPort describes the storage used by Service.
type RepositoryPort interface {
	Append(ctx context.Context, e Entry) (int64, error)
	ListByEntity(ctx context.Context, kind, id string, limit, offset int) ([]Entry, error)
}

// Service is the append-only audit log.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds the audit log service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock used to stamp entries.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Append records an entry and returns its id. A storage failure is returned to the
// caller, which decides whether its own operation must abort.
func (s *Service) Append(ctx context.Context, e Entry) (int64, error) {
	if s.repo == nil {
		return 0, fmt.Errorf("audit: repository not configured")
	}
	if err := Validate(e); err != nil {
		return 0, err
	}
	if e.At.IsZero() {
		e.At = s.now().UTC()
	}
	if e.TraceID == uuid.Nil {
		e.TraceID = uuid.New()
	}
	return s.repo.Append(ctx, e)
}

// QueryByEntity returns the full history of an entity, newest first.
func (s *Service) QueryByEntity(ctx context.Context, kind, id string) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	entries, err := s.repo.ListByEntity(ctx, strings.TrimSpace(kind), strings.TrimSpace(id), 0, 0)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(entries)
	return entries, nil
}

// sortNewestFirst orders entries by time, then id, both descending.
func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].At.Equal(entries[j].At) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].At.After(entries[j].At)
	})
}

// History returns one page of an entity history.
func (s *Service) History(ctx context.Context, filter HistoryFilter) (Page, error) {
	if s.repo == nil {
		return Page{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	entries, err := s.repo.ListByEntity(ctx, strings.TrimSpace(filter.Kind), strings.TrimSpace(filter.ID), pageSize+1, offset)
	if err != nil {
		return Page{}, err
	}
	sortNewestFirst(entries)
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Page{Entries: entries, Paging: paging}, nil
}
