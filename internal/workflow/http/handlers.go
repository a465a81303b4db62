package workflowhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/talentdesk/talentdesk/internal/platform/httpx"
	"github.com/talentdesk/talentdesk/internal/shared"
	"github.com/talentdesk/talentdesk/internal/workflow"
)

// Engine is the workflow contract used by the handlers.
type Engine interface {
	Transition(ctx context.Context, actorID int64, kind workflow.Kind, id int64, target workflow.Status, tc workflow.Context) (workflow.Result, error)
	Available(ctx context.Context, actorID int64, kind workflow.Kind, id int64) (workflow.Entity, []workflow.Edge, error)
	Registry() *workflow.Registry
}

// Handler exposes transitions to the form layer.
type Handler struct {
	logger    *slog.Logger
	engine    Engine
	validator *validator.Validate
}

// NewHandler builds the workflow handler.
func NewHandler(logger *slog.Logger, engine Engine) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, engine: engine, validator: validator.New()}
}

// MountRoutes registers the workflow endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/workflow/{kind}", func(r chi.Router) {
		r.Get("/graph", h.handleGraph)
		r.Get("/{id}/transitions", h.handleAvailable)
		r.Post("/{id}/transitions", h.handleTransition)
	})
}

type transitionRequest struct {
	Target   string         `json:"target" validate:"required,max=64"`
	Expected string         `json:"expected" validate:"max=64"`
	Comment  string         `json:"comment" validate:"max=2000"`
	Payload  map[string]any `json:"payload"`
}

type availableResponse struct {
	Entity      workflow.Entity `json:"entity"`
	Transitions []workflow.Edge `json:"transitions"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, ok := entityID(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			err = fmt.Errorf("%w: %s %s", shared.ErrValidation, fieldErrs[0].Field(), fieldErrs[0].Tag())
		}
		httpx.RespondError(w, err)
		return
	}
	kind := workflow.Kind(chi.URLParam(r, "kind"))
	res, err := h.engine.Transition(r.Context(), actorID, kind, id, workflow.Status(strings.TrimSpace(req.Target)), workflow.Context{
		Comment:        strings.TrimSpace(req.Comment),
		ExpectedStatus: workflow.Status(strings.TrimSpace(req.Expected)),
		Payload:        req.Payload,
	})
	if err != nil {
		h.respond(w, "transition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleAvailable(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, ok := entityID(w, r)
	if !ok {
		return
	}
	entity, edges, err := h.engine.Available(r.Context(), actorID, workflow.Kind(chi.URLParam(r, "kind")), id)
	if err != nil {
		h.respond(w, "available", err)
		return
	}
	if edges == nil {
		edges = []workflow.Edge{}
	}
	httpx.JSON(w, http.StatusOK, availableResponse{Entity: entity, Transitions: edges})
}

func (h *Handler) handleGraph(w http.ResponseWriter, r *http.Request) {
	m, ok := h.engine.Registry().Machine(workflow.Kind(chi.URLParam(r, "kind")))
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: unknown workflow kind", shared.ErrNotFound))
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) respond(w http.ResponseWriter, op string, err error) {
	if shared.IsStorageUnavailable(err) {
		h.logger.Error("workflow "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func entityID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid entity id", shared.ErrValidation))
		return 0, false
	}
	return id, true
}
