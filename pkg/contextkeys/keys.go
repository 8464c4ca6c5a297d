// Package contextkeys centralizes the context key definitions shared across
// middleware and handlers, so key usage stays discoverable and typo-free.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions.
type Key string

const (
	// IdentityKey contains *auth.Identity, set by the auth middleware.
	IdentityKey Key = "identity"

	// RequestIDKey contains the request ID string set by the request-id
	// middleware and echoed in responses.
	RequestIDKey Key = "request_id"
)

// WithIdentity adds the authenticated identity to the context.
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithRequestID adds the request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID returns the request ID from the context, or "" when absent.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}
