package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/storiats/memoryvista/pkg/profiles"
	"github.com/storiats/memoryvista/pkg/requests"
	"github.com/storiats/memoryvista/pkg/universities"
)

// Server represents our API server
type Server struct {
	universities *universities.Service
	profiles     *profiles.Service
	requests     *requests.Service
	router       *mux.Router
	log          *logrus.Logger
}

// NewServer creates a new API server
func NewServer(u *universities.Service, p *profiles.Service, r *requests.Service, log *logrus.Logger) *Server {
	s := &Server{
		universities: u,
		profiles:     p,
		requests:     r,
		router:       mux.NewRouter(),
		log:          log,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// University routes
	v1.HandleFunc("/universities", s.createUniversity).Methods("POST")
	v1.HandleFunc("/universities/{id}", s.getUniversity).Methods("GET")
	v1.HandleFunc("/universities/{id}/admins", s.grantUniversityAdmin).Methods("POST")
	v1.HandleFunc("/universities/{id}/admins/{userID}", s.revokeUniversityAdmin).Methods("DELETE")
	v1.HandleFunc("/universities/{id}/profiles", s.listUniversityProfiles).Methods("GET")

	// Profile routes
	v1.HandleFunc("/profiles", s.createProfile).Methods("POST")
	v1.HandleFunc("/profiles/{id}", s.getProfile).Methods("GET")
	v1.HandleFunc("/profiles/{id}", s.updateProfile).Methods("PATCH")
	v1.HandleFunc("/profiles/{id}/publish", s.publishProfile).Methods("POST")
	v1.HandleFunc("/profiles/{id}/unpublish", s.unpublishProfile).Methods("POST")
	v1.HandleFunc("/profiles/{id}/role", s.getProfileRole).Methods("GET")
	v1.HandleFunc("/profiles/{id}/collaborators", s.addCollaborator).Methods("POST")
	v1.HandleFunc("/profiles/{id}/collaborators/{userID}", s.removeCollaborator).Methods("DELETE")

	// Editor request workflow routes
	v1.HandleFunc("/profiles/{id}/editor-requests", s.submitEditorRequest).Methods("POST")
	v1.HandleFunc("/profiles/{id}/editor-requests", s.listEditorRequests).Methods("GET")
	v1.HandleFunc("/profiles/{id}/editor-requests/{requestID}/approve", s.approveEditorRequest).Methods("POST")
	v1.HandleFunc("/profiles/{id}/editor-requests/{requestID}/reject", s.rejectEditorRequest).Methods("POST")
	v1.HandleFunc("/me/editor-requests", s.listMyEditorRequests).Methods("GET")
	v1.HandleFunc("/me/editor-requests/stats", s.getMyRequestStats).Methods("GET")
}

// Router returns the raw mux router, for tests and middleware wiring.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped with OpenTelemetry instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "memoryvista-api")
}
