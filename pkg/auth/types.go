package auth

// Identity is the opaque user identity issued by the external auth
// provider. The service consumes it; it never creates or mutates users.
type Identity struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Verified    bool   `json:"verified"`
}
