package middleware

import (
	"net/http"
	"strings"

	"github.com/storiats/memoryvista/pkg/auth"
	"github.com/storiats/memoryvista/pkg/contextkeys"
	"github.com/storiats/memoryvista/pkg/httputil"
)

// AuthMiddleware verifies bearer tokens and attaches the identity to the
// request context.
type AuthMiddleware struct {
	codec *auth.TokenCodec
	// optional lets unauthenticated requests through with no identity,
	// for the public read endpoints.
	optional bool
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(codec *auth.TokenCodec, optional bool) *AuthMiddleware {
	return &AuthMiddleware{codec: codec, optional: optional}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		identity, err := m.codec.Verify(parts[1])
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentity extracts the authenticated identity from the request, or nil
// when the request is anonymous.
func GetIdentity(r *http.Request) *auth.Identity {
	v := r.Context().Value(contextkeys.IdentityKey)
	if v == nil {
		return nil
	}
	identity, ok := v.(*auth.Identity)
	if !ok {
		return nil
	}
	return identity
}

// RequireIdentity extracts the identity or writes a 401 and returns false.
func RequireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity := GetIdentity(r)
	if identity == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	return identity, true
}
