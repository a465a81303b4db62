package audithttp

import "github.com/go-chi/chi/v5"

// MountRoutes registers the entity history endpoint. Rate limiting is applied by the
// application middleware stack.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/history/{kind}/{id}", h.handleHistory)
}
