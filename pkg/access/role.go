package access

// Role represents a user's effective role on a resource.
type Role string

const (
	RoleNone   Role = "none"
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleNone, RoleViewer, RoleEditor, RoleAdmin:
		return true
	}
	return false
}

// CanEdit reports whether a role permits mutating the resource it was
// resolved against. This is the single write-policy decision point; handlers
// must not re-derive it. Unknown roles are denied.
func CanEdit(role Role) bool {
	return role == RoleEditor || role == RoleAdmin
}

// CanRequestAccess reports whether a role is low enough that requesting
// elevated access makes sense. Editors and admins already hold write access.
func CanRequestAccess(role Role) bool {
	return role == RoleNone || role == RoleViewer
}
