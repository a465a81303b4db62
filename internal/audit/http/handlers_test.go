package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/talentdesk/talentdesk/internal/audit"
	"github.com/talentdesk/talentdesk/internal/shared"
)

type stubHistoryService struct {
	page       audit.Page
	lastFilter audit.HistoryFilter
}

func (s *stubHistoryService) History(ctx context.Context, filter audit.HistoryFilter) (audit.Page, error) {
	s.lastFilter = filter
	return s.page, nil
}

type stubAuthorizer struct {
	allowed map[string]bool
}

func (s stubAuthorizer) Require(ctx context.Context, actorID int64, module, action string) error {
	perm := shared.Perm(module, action)
	if s.allowed[perm.Key()] {
		return nil
	}
	return &shared.AuthorizationError{ActorID: actorID, Permission: perm}
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestHistoryReturnsPage(t *testing.T) {
	svc := &stubHistoryService{page: audit.Page{
		Entries: []audit.Entry{{ID: 2, EntityKind: "submission", EntityID: "9", Action: audit.ActionTransition}},
		Paging:  audit.PagingInfo{Page: 2, PageSize: 10},
	}}
	h := NewHandler(nil, svc, stubAuthorizer{allowed: map[string]bool{"audit.view": true}})

	req := httptest.NewRequest(http.MethodGet, "/history/submission/9?page=2&page_size=10", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), 4))
	rr := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, audit.HistoryFilter{Kind: "submission", ID: "9", Page: 2, PageSize: 10}, svc.lastFilter)
	var page audit.Page
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Entries, 1)
}

func TestHistoryRequiresPermission(t *testing.T) {
	svc := &stubHistoryService{}
	h := NewHandler(nil, svc, stubAuthorizer{})

	req := httptest.NewRequest(http.MethodGet, "/history/job/1", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), 4))
	rr := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Empty(t, svc.lastFilter.Kind)
}

func TestHistoryRequiresActor(t *testing.T) {
	h := NewHandler(nil, &stubHistoryService{}, stubAuthorizer{})
	rr := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/history/job/1", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
