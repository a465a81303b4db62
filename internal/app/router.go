package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/talentdesk/talentdesk/internal/audit/http"
	"github.com/talentdesk/talentdesk/internal/observability"
	"github.com/talentdesk/talentdesk/internal/rbac"
	workflowhttp "github.com/talentdesk/talentdesk/internal/workflow/http"
	"github.com/talentdesk/talentdesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Metrics         *observability.Metrics
	RBACHandler     *rbac.Handler
	WorkflowHandler *workflowhttp.Handler
	AuditHandler    *audithttp.Handler
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with TalentDesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.RBACHandler != nil {
		r.Route("/admin/access", params.RBACHandler.MountRoutes)
	}
	if params.WorkflowHandler != nil {
		params.WorkflowHandler.MountRoutes(r)
	}
	if params.AuditHandler != nil {
		params.AuditHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		params.JobHandler.MountRoutes(r)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
