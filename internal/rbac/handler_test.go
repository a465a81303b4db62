package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/talentdesk/talentdesk/internal/shared"
)

func newAdminRouter(t *testing.T) (http.Handler, fixture) {
	t.Helper()
	f := newFixture(t, nil)
	adminRole := f.store.addRole("admin", true)
	for _, p := range []shared.Permission{shared.PermRolesView, shared.PermRolesEdit, shared.PermPermissionsView, shared.PermPermissionsEdit} {
		f.store.setEdge(adminRole.ID, f.store.addPermission(p), true)
	}
	f.store.addActor(adminID, adminRole.ID)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if raw := req.Header.Get("X-Actor-ID"); raw != "" {
				id, _ := strconv.ParseInt(raw, 10, 64)
				req = req.WithContext(shared.ContextWithActor(req.Context(), id))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/admin/access", NewHandler(nil, f.resolver).MountRoutes)
	return r, f
}

func do(t *testing.T, h http.Handler, method, path string, actor int64, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if actor > 0 {
		req.Header.Set("X-Actor-ID", strconv.FormatInt(actor, 10))
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminRequiresActorAndPermission(t *testing.T) {
	h, _ := newAdminRouter(t)

	rec := do(t, h, http.MethodGet, "/admin/access/roles", 0, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/admin/access/roles", recruiterID, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = do(t, h, http.MethodGet, "/admin/access/roles", adminID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Roles []Role `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Roles, 2)
}

func TestAdminOverrideFlow(t *testing.T) {
	h, f := newAdminRouter(t)
	path := "/admin/access/actors/" + strconv.FormatInt(recruiterID, 10)

	rec := do(t, h, http.MethodPost, path+"/overrides", adminID, `{"permission":"jobs.approve","decision":"allow"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, path+"/decide?permission=jobs.approve", adminID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var decided struct {
		Permission string   `json:"permission"`
		Decision   Decision `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decided))
	require.Equal(t, "jobs.approve", decided.Permission)
	require.True(t, decided.Decision.Allowed)
	require.Equal(t, SourceOverride, decided.Decision.Source)

	rec = do(t, h, http.MethodPost, path+"/overrides", adminID, `{"permission":"jobs.approve","decision":"reset"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	ok, err := f.resolver.Can(context.Background(), recruiterID, "jobs", "approve")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAdminRejectsInvalidBodies(t *testing.T) {
	h, _ := newAdminRouter(t)
	path := "/admin/access/actors/" + strconv.FormatInt(recruiterID, 10) + "/overrides"

	rec := do(t, h, http.MethodPost, path, adminID, `{"permission":"jobs.approve","decision":"maybe"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, path, adminID, `{"permission":"jobs","decision":"allow"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, path, adminID, `{"permission":"jobs.approve","decision":"allow","extra":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/admin/access/roles/abc", adminID, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRoleLifecycleErrors(t *testing.T) {
	h, f := newAdminRouter(t)

	rec := do(t, h, http.MethodDelete, "/admin/access/roles/"+strconv.FormatInt(f.recruiter.ID, 10), adminID, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/admin/access/roles", adminID, `{"name":"sourcer","description":"sources candidates"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var role Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &role))
	require.Equal(t, "sourcer", role.Name)

	body := `{"grants":[{"permission_id":` + strconv.FormatInt(f.approve.ID, 10) + `,"granted":true}]}`
	rec = do(t, h, http.MethodPut, "/admin/access/roles/"+strconv.FormatInt(role.ID, 10)+"/permissions", adminID, body)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodPut, "/admin/access/actors/"+strconv.FormatInt(recruiterID, 10)+"/role", adminID, `{"role_id":`+strconv.FormatInt(role.ID, 10)+`}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	ok, err := f.resolver.Can(context.Background(), recruiterID, "jobs", "approve")
	require.NoError(t, err)
	require.True(t, ok)

	rec = do(t, h, http.MethodDelete, "/admin/access/roles/9999", adminID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
