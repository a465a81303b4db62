package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/talentdesk/talentdesk/internal/audit"
	"github.com/talentdesk/talentdesk/internal/platform/httpx"
	"github.com/talentdesk/talentdesk/internal/shared"
)

// HistoryService defines the business contract for entity history.
type HistoryService interface {
	History(ctx context.Context, filter audit.HistoryFilter) (audit.Page, error)
}

// Authorizer resolves permissions for the current actor.
type Authorizer interface {
	Require(ctx context.Context, actorID int64, module, action string) error
}

// Handler serves entity history for timeline views.
type Handler struct {
	logger  *slog.Logger
	service HistoryService
	authz   Authorizer
}

// NewHandler builds the audit history handler.
func NewHandler(logger *slog.Logger, service HistoryService, authz Authorizer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: authz}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if err := h.authz.Require(r.Context(), actorID, shared.PermAuditView.Module, shared.PermAuditView.Action); err != nil {
		h.respond(w, err)
		return
	}
	filter := audit.HistoryFilter{
		Kind:     strings.TrimSpace(chi.URLParam(r, "kind")),
		ID:       strings.TrimSpace(chi.URLParam(r, "id")),
		Page:     parseInt(r.URL.Query().Get("page")),
		PageSize: parseInt(r.URL.Query().Get("page_size")),
	}
	if filter.Kind == "" || filter.ID == "" {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	page, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) respond(w http.ResponseWriter, err error) {
	if shared.IsStorageUnavailable(err) {
		h.logger.Error("audit history", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseInt(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return v
}
