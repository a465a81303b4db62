package httpx

import (
	"net/http"
	"strconv"

	"github.com/go-chi/httprate"

	"github.com/talentdesk/talentdesk/internal/shared"
)

// RateLimitKey buckets requests by authenticated actor, falling back to client IP.
func RateLimitKey(r *http.Request) (string, error) {
	if actorID, ok := shared.ActorFromContext(r.Context()); ok {
		return "actor:" + strconv.FormatInt(actorID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
