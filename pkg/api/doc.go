// Package api exposes the HTTP surface of the service: universities,
// profiles, the caller's effective role, and the editor access request
// workflow.
//
// Authentication is optional at the router level; handlers that mutate state
// require an identity and return 401 without one. Resources the caller may
// not act on render as a generic 404, never a 403, so responses do not leak
// which profiles or requests exist.
package api
