package rbac

import (
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
)

// Handler exposes role and permission administration as JSON endpoints.
type Handler struct {
	logger     *slog.Logger
	resolver   *Resolver
	middleware Middleware
	validator  *validator.Validate
}

// NewHandler constructs the admin handler.
func NewHandler(logger *slog.Logger, resolver *Resolver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:     logger,
		resolver:   resolver,
		middleware: Middleware{Resolver: resolver, Logger: logger},
		validator:  validator.New(),
	}
}

// MountRoutes registers the admin endpoints relative to r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(h.middleware.RequireAny(shared.PermRolesView, shared.PermRolesEdit))
		gr.Get("/roles", h.listRoles)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.middleware.RequireAll(shared.PermRolesEdit))
		gr.Post("/roles", h.createRole)
		gr.Delete("/roles/{roleID}", h.deleteRole)
		gr.Put("/roles/{roleID}/permissions", h.setRolePermissions)
		gr.Put("/actors/{actorID}/role", h.assignRole)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.middleware.RequireAny(shared.PermPermissionsView, shared.PermPermissionsEdit))
		gr.Get("/permissions", h.listPermissions)
		gr.Get("/actors/{actorID}/overrides", h.listOverrides)
		gr.Get("/actors/{actorID}/effective", h.effective)
		gr.Get("/actors/{actorID}/decide", h.decide)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.middleware.RequireAll(shared.PermPermissionsEdit))
		gr.Post("/actors/{actorID}/overrides", h.setOverride)
	})
}

type createRoleRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
}

type rolePermissionsRequest struct {
	Grants []RoleGrant `json:"grants" validate:"dive"`
}

type overrideRequest struct {
	Permission string `json:"permission" validate:"required"`
	Decision   string `json:"decision" validate:"required,oneof=allow deny reset"`
}

type assignRoleRequest struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.resolver.ListRoles(r.Context())
	if err != nil {
		h.respond(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.resolver.ListPermissions(r.Context())
	if err != nil {
		h.respond(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	by, _ := shared.ActorFromContext(r.Context())
	role, err := h.resolver.CreateRole(r.Context(), by, req.Name, req.Description)
	if err != nil {
		h.respond(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	by, _ := shared.ActorFromContext(r.Context())
	if err := h.resolver.DeleteRole(r.Context(), by, roleID); err != nil {
		h.respond(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req rolePermissionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	by, _ := shared.ActorFromContext(r.Context())
	if err := h.resolver.SetRolePermissions(r.Context(), by, roleID, req.Grants); err != nil {
		h.respond(w, "set role permissions", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.pathID(w, r, "actorID")
	if !ok {
		return
	}
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	by, _ := shared.ActorFromContext(r.Context())
	if err := h.resolver.AssignRole(r.Context(), by, actorID, req.RoleID); err != nil {
		h.respond(w, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listOverrides(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.pathID(w, r, "actorID")
	if !ok {
		return
	}
	overrides, err := h.resolver.ListOverrides(r.Context(), actorID)
	if err != nil {
		h.respond(w, "list overrides", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"overrides": overrides})
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.pathID(w, r, "actorID")
	if !ok {
		return
	}
	var req overrideRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := shared.ParsePermission(req.Permission)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	by, _ := shared.ActorFromContext(r.Context())
	switch req.Decision {
	case "allow":
		err = h.resolver.Grant(r.Context(), by, actorID, perm)
	case "deny":
		err = h.resolver.Revoke(r.Context(), by, actorID, perm)
	default:
		err = h.resolver.ResetToRoleDefault(r.Context(), by, actorID, perm)
	}
	if err != nil {
		h.respond(w, "set override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) effective(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.pathID(w, r, "actorID")
	if !ok {
		return
	}
	keys, err := h.resolver.Effective(r.Context(), actorID)
	if err != nil {
		h.respond(w, "effective permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"actor_id": actorID, "permissions": keys})
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.pathID(w, r, "actorID")
	if !ok {
		return
	}
	perm, err := shared.ParsePermission(r.URL.Query().Get("permission"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	decision, err := h.resolver.Decide(r.Context(), actorID, perm.Module, perm.Action)
	if err != nil {
		h.respond(w, "decide", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"actor_id": actorID, "permission": perm.Key(), "decision": decision})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(w, r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields = append(fields, fe.Field()+" "+fe.Tag())
			}
			err = fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(fields, ", "))
		} else {
			err = fmt.Errorf("%w: %v", shared.ErrValidation, err)
		}
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid %s", shared.ErrValidation, param))
		return 0, false
	}
	return id, true
}

func (h *Handler) respond(w http.ResponseWriter, op string, err error) {
	if shared.IsStorageUnavailable(err) {
		h.logger.Error("rbac admin", slog.String("op", op), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
