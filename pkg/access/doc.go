// Package access resolves effective roles and centralizes the edit policy.
//
// Role resolution is read-only and fails closed: a missing resource and an
// absent membership both resolve to RoleNone, so callers cannot use the
// resolver to probe for a resource's existence. Resolved roles are cached in
// a TTL-bounded LRU; any code path that changes a user's grants must call
// Invalidate for that user.
package access
