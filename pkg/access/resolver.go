package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/storiats/memoryvista/pkg/store"
)

const defaultCacheSize = 4096

// Resolver determines a user's effective role on universities and profiles
// by reading resource documents. It is read-only; role mutations happen
// elsewhere and must call Invalidate afterwards.
type Resolver struct {
	reader store.Reader
	cache  *expirable.LRU[string, Role]
	log    *logrus.Entry
}

// NewResolver creates a resolver over the given reader. A cacheTTL of zero
// disables caching.
func NewResolver(reader store.Reader, cacheTTL time.Duration, log *logrus.Logger) *Resolver {
	r := &Resolver{
		reader: reader,
		log:    log.WithField("component", "access"),
	}
	if cacheTTL > 0 {
		r.cache = expirable.NewLRU[string, Role](defaultCacheSize, nil, cacheTTL)
	}
	return r
}

// UniversityRole resolves the user's role on a university: admin iff the
// user is in the admin set, none otherwise. A missing university resolves to
// none rather than an error so callers cannot distinguish "absent" from
// "no permission".
func (r *Resolver) UniversityRole(ctx context.Context, userID, universityID string) (Role, error) {
	key := cacheKey(userID, "university", universityID)
	if role, ok := r.cached(key); ok {
		return role, nil
	}

	u, err := r.reader.GetUniversity(ctx, universityID)
	if errors.Is(err, store.ErrNotFound) {
		return RoleNone, nil
	}
	if err != nil {
		return RoleNone, fmt.Errorf("failed to resolve university role: %w", err)
	}

	role := RoleNone
	if u.IsAdmin(userID) {
		role = RoleAdmin
	}
	r.put(key, role)
	return role, nil
}

// ProfileRole resolves the user's role on a profile:
//
//   - admin if the user administers the owning university
//   - editor if the user created the profile or is a collaborator
//   - viewer if the profile is published
//   - none otherwise, including when the profile does not exist
func (r *Resolver) ProfileRole(ctx context.Context, userID, profileID string) (Role, error) {
	key := cacheKey(userID, "profile", profileID)
	if role, ok := r.cached(key); ok {
		return role, nil
	}

	p, err := r.reader.GetProfile(ctx, profileID)
	if errors.Is(err, store.ErrNotFound) {
		return RoleNone, nil
	}
	if err != nil {
		return RoleNone, fmt.Errorf("failed to resolve profile role: %w", err)
	}

	role, err := r.roleOnProfile(ctx, userID, p)
	if err != nil {
		return RoleNone, err
	}
	r.put(key, role)
	return role, nil
}

func (r *Resolver) roleOnProfile(ctx context.Context, userID string, p *store.Profile) (Role, error) {
	if p.UniversityID != "" {
		uniRole, err := r.UniversityRole(ctx, userID, p.UniversityID)
		if err != nil {
			return RoleNone, err
		}
		if uniRole == RoleAdmin {
			return RoleAdmin, nil
		}
	}
	if p.CreatedBy == userID || p.IsCollaborator(userID) {
		return RoleEditor, nil
	}
	if p.Status == store.StatusPublished {
		return RoleViewer, nil
	}
	return RoleNone, nil
}

// Invalidate drops every cached role for the user. Call after any grant,
// revoke, or approval that changes the user's effective roles.
func (r *Resolver) Invalidate(userID string) {
	if r.cache == nil {
		return
	}
	prefix := userID + "|"
	for _, key := range r.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			r.cache.Remove(key)
		}
	}
	r.log.WithField("user_id", userID).Debug("invalidated cached roles")
}

// InvalidateResource drops cached roles every user holds on one resource.
// Used when the resource itself changes shape, e.g. publication.
func (r *Resolver) InvalidateResource(kind, resourceID string) {
	if r.cache == nil {
		return
	}
	suffix := "|" + kind + "|" + resourceID
	for _, key := range r.cache.Keys() {
		if strings.HasSuffix(key, suffix) {
			r.cache.Remove(key)
		}
	}
}

func (r *Resolver) cached(key string) (Role, bool) {
	if r.cache == nil {
		return RoleNone, false
	}
	return r.cache.Get(key)
}

func (r *Resolver) put(key string, role Role) {
	if r.cache != nil {
		r.cache.Add(key, role)
	}
}

func cacheKey(userID, kind, resourceID string) string {
	return userID + "|" + kind + "|" + resourceID
}
