package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/storiats/memoryvista/pkg/contextkeys"
	"github.com/storiats/memoryvista/pkg/httputil"
	"github.com/storiats/memoryvista/pkg/profiles"
	"github.com/storiats/memoryvista/pkg/requests"
	"github.com/storiats/memoryvista/pkg/store"
	"github.com/storiats/memoryvista/pkg/universities"
)

// writeServiceError maps domain errors onto HTTP responses. Authorization
// failures and missing resources share one generic 404 body.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var rateLimited *requests.RateLimitedError
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, profiles.ErrNotFound),
		errors.Is(err, universities.ErrNotFound),
		errors.Is(err, profiles.ErrUnauthorized),
		errors.Is(err, requests.ErrUnauthorized):
		httputil.WriteNotFoundError(w, "not found")

	case errors.As(err, &rateLimited):
		var retryAfter time.Duration
		if !rateLimited.RetryAfter.IsZero() {
			retryAfter = time.Until(rateLimited.RetryAfter)
		}
		httputil.WriteTooManyRequests(w, rateLimited.Reason, retryAfter)

	case errors.Is(err, requests.ErrAlreadyEditor),
		errors.Is(err, requests.ErrNotPending),
		errors.Is(err, universities.ErrLastAdmin):
		httputil.WriteConflict(w, err.Error())

	case errors.Is(err, profiles.ErrInvalidKind),
		errors.Is(err, profiles.ErrUnknownUniversity):
		httputil.WriteBadRequest(w, err.Error())

	case store.IsUnavailable(err):
		s.log.WithError(err).WithField("request_id", contextkeys.RequestID(r.Context())).
			Error("store unavailable")
		httputil.WriteServiceUnavailable(w, "service temporarily unavailable")

	default:
		s.log.WithError(err).WithField("request_id", contextkeys.RequestID(r.Context())).
			Error("unhandled service error")
		httputil.WriteInternalError(w, errors.New("internal server error"))
	}
}
