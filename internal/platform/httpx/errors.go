// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/talentdesk/talentdesk/internal/shared"
)

// Sentinel errors for the HTTP layer.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var (
		authz      *shared.AuthorizationError
		transition *shared.IllegalTransitionError
		inUse      *shared.RoleInUseError
		immutable  *shared.ImmutableRoleError
		storage    *shared.StorageUnavailableError
	)
	switch {
	case errors.As(err, &authz):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.As(err, &transition):
		title := "Illegal Transition"
		if transition.Stale {
			title = "Stale Status"
		}
		Problem(w, http.StatusConflict, title, err.Error())
	case errors.As(err, &inUse):
		Problem(w, http.StatusUnprocessableEntity, "Role In Use", err.Error())
	case errors.As(err, &immutable):
		Problem(w, http.StatusUnprocessableEntity, "Immutable Role", err.Error())
	case errors.As(err, &storage):
		Problem(w, http.StatusServiceUnavailable, "Storage Unavailable", "")
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation), errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
