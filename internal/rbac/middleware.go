package rbac

import (
	"log/slog"
	"net/http"

	"github.com/talentdesk/talentdesk/internal/platform/httpx"
	"github.com/talentdesk/talentdesk/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// RequireAny ensures the current actor has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...shared.Permission) func(http.Handler) http.Handler {
	required := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actorID, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			for _, p := range required {
				allowed, err := m.Resolver.Can(r.Context(), actorID, p.Module, p.Action)
				if err != nil {
					m.logError("rbac require any", err)
					httpx.RespondError(w, err)
					return
				}
				if allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.RespondError(w, &shared.AuthorizationError{ActorID: actorID, Permission: required[0]})
		})
	}
}

// RequireAll ensures the current actor has all required permissions.
func (m Middleware) RequireAll(perms ...shared.Permission) func(http.Handler) http.Handler {
	required := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actorID, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			for _, p := range required {
				if err := m.Resolver.RequirePermission(r.Context(), actorID, p); err != nil {
					if !shared.IsForbidden(err) {
						m.logError("rbac require all", err)
					}
					httpx.RespondError(w, err)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) logError(msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.Any("error", err))
	}
}

func normalizePermissions(perms []shared.Permission) []shared.Permission {
	seen := make(map[string]struct{}, len(perms))
	out := make([]shared.Permission, 0, len(perms))
	for _, p := range perms {
		p = shared.Perm(normalize(p.Module), normalize(p.Action))
		if p.IsZero() {
			continue
		}
		if _, ok := seen[p.Key()]; ok {
			continue
		}
		seen[p.Key()] = struct{}{}
		out = append(out, p)
	}
	return out
}
