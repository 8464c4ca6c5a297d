// Package middleware provides the authentication and rate-limiting HTTP
// middleware shared by the API server.
//
// Authentication verifies bearer tokens and places the resulting identity in
// the request context:
//
//	authn := middleware.NewAuthMiddleware(codec, false)
//	router.Use(authn.Handler)
//
// Handlers read it back with middleware.GetIdentity(r).
//
// Two rate limiters are available: an in-memory token bucket for single
// instances, and a Redis-backed fixed window shared across instances. Both
// fail open when their backing state is unavailable.
package middleware
