package api

import (
	"net/http"

	"github.com/storiats/memoryvista/pkg/httputil"
	"github.com/storiats/memoryvista/pkg/middleware"
)

type createUniversityRequest struct {
	Name string `json:"name"`
}

type grantAdminRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) createUniversity(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.RequireIdentity(w, r)
	if !ok {
		return
	}

	var req createUniversityRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	u, err := s.universities.Create(r.Context(), identity.UserID, req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, u)
}

func (s *Server) getUniversity(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	u, err := s.universities.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, u)
}

func (s *Server) grantUniversityAdmin(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.RequireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req grantAdminRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}

	if err := s.universities.GrantAdmin(r.Context(), identity.UserID, id, req.UserID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) revokeUniversityAdmin(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.RequireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "userID")
	if !ok {
		return
	}

	if err := s.universities.RevokeAdmin(r.Context(), identity.UserID, id, userID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) listUniversityProfiles(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var callerID string
	if identity := middleware.GetIdentity(r); identity != nil {
		callerID = identity.UserID
	}

	list, err := s.profiles.ListByUniversity(r.Context(), callerID, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"profiles": list})
}
