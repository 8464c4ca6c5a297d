package api

import (
	"net/http"

	"github.com/storiats/memoryvista/pkg/access"
	"github.com/storiats/memoryvista/pkg/httputil"
	"github.com/storiats/memoryvista/pkg/middleware"
	"github.com/storiats/memoryvista/pkg/profiles"
	"github.com/storiats/memoryvista/pkg/store"
)

type addCollaboratorRequest struct {
	UserID string `json:"user_id"`
}

type roleResponse struct {
	Role    access.Role `json:"role"`
	CanEdit bool        `json:"can_edit"`
}

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.RequireIdentity(w, r)
	if !ok {
		return
	}

	var req profiles.CreateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.FullName, "full_name") {
		return
	}

	p, err := s.profiles.Create(r.Context(), identity.UserID, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, p)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var callerID string
	if identity := middleware.GetIdentity(r); identity != nil {
		callerID = identity.UserID
	}

	p, err := s.profiles.Get(r.Context(), callerID, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.RequireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var upd store.ProfileUpdate
	if !httputil.ParseJSONOrError(w, r, &upd) {
		return
	}

	p, err := s.profiles.Update(r.Context(), identity.UserID, id, upd)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

func (s *Server) publishProfile(w http.ResponseWriter, r *http.Request) {
	s.setProfileStatus(w, r, true)
}

func (s *Server) unpublishProfile(w http.ResponseWriter, r *http.Request) {
	s.setProfileStatus(w, r, false)
}

func (s *Server) setProfileStatus(w http.ResponseWriter, r *http.Request, publish bool) {
	identity, ok := middleware.RequireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var err error
	if publish {
		err = s.profiles.Publish(r.Context(), identity.UserID, id)
	} else {
		err = s.profiles.Unpublish(r.Context(), identity.UserID, id)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) getProfileRole(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.RequireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	role, err := s.profiles.Role(r.Context(), identity.UserID, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roleResponse{Role: role, CanEdit: access.CanEdit(role)})
}

func (s *Server) addCollaborator(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.RequireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req addCollaboratorRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}

	if err := s.profiles.AddCollaborator(r.Context(), identity.UserID, id, req.UserID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) removeCollaborator(w http.ResponseWriter, r *http.Request) {
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

	if err := s.profiles.RemoveCollaborator(r.Context(), identity.UserID, id, userID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
