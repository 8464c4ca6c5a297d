package api

import (
	"net/http"

	"github.com/storiats/memoryvista/pkg/httputil"
	"github.com/storiats/memoryvista/pkg/middleware"
)

type submitEditorRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) submitEditorRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.RequireIdentity(w, r)
	if !ok {
		return
	}
	profileID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req submitEditorRequest
	if r.ContentLength > 0 && !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	created, err := s.requests.Submit(r.Context(), identity.UserID, profileID, req.Reason)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, created)
}

func (s *Server) listEditorRequests(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.RequireIdentity(w, r)
	if !ok {
		return
	}
	profileID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	list, err := s.requests.ListByProfile(r.Context(), identity.UserID, profileID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"requests": list})
}

func (s *Server) approveEditorRequest(w http.ResponseWriter, r *http.Request) {
	s.decideEditorRequest(w, r, true)
}

func (s *Server) rejectEditorRequest(w http.ResponseWriter, r *http.Request) {
	s.decideEditorRequest(w, r, false)
}

func (s *Server) decideEditorRequest(w http.ResponseWriter, r *http.Request, approve bool) {
	identity, ok := middleware.RequireIdentity(w, r)
	if !ok {
		return
	}
	profileID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	requestID, ok := httputil.ParsePathStringOrError(w, r, "requestID")
	if !ok {
		return
	}

	var (
		decided interface{}
		err     error
	)
	if approve {
		decided, err = s.requests.Approve(r.Context(), identity.UserID, profileID, requestID)
	} else {
		decided, err = s.requests.Reject(r.Context(), identity.UserID, profileID, requestID)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, decided)
}

func (s *Server) listMyEditorRequests(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.RequireIdentity(w, r)
	if !ok {
		return
	}

	list, err := s.requests.ListMine(r.Context(), identity.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"requests": list})
}

func (s *Server) getMyRequestStats(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.RequireIdentity(w, r)
	if !ok {
		return
	}

	stats, err := s.requests.Stats(r.Context(), identity.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}
