package access

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storiats/memoryvista/pkg/store"
	"github.com/storiats/memoryvista/pkg/store/memstore"
)

func testResolver(t *testing.T, ttl time.Duration) (*Resolver, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewResolver(st, ttl, log), st
}

func seedUniversity(t *testing.T, st *memstore.Store, id string, adminIDs ...string) {
	t.Helper()
	require.NoError(t, st.CreateUniversity(context.Background(), &store.University{
		ID:       id,
		Name:     "Test University",
		AdminIDs: adminIDs,
	}))
}

func seedProfile(t *testing.T, st *memstore.Store, p *store.Profile) {
	t.Helper()
	require.NoError(t, st.CreateProfile(context.Background(), p))
}

func TestUniversityRole(t *testing.T) {
	r, st := testResolver(t, 0)
	ctx := context.Background()
	seedUniversity(t, st, "uni-1", "admin-1")

	role, err := r.UniversityRole(ctx, "admin-1", "uni-1")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	role, err = r.UniversityRole(ctx, "someone-else", "uni-1")
	require.NoError(t, err)
	assert.Equal(t, RoleNone, role)
}

func TestUniversityRole_MissingResolvesToNone(t *testing.T) {
	r, _ := testResolver(t, 0)

	role, err := r.UniversityRole(context.Background(), "user-1", "no-such-uni")
	require.NoError(t, err)
	assert.Equal(t, RoleNone, role)
}

func TestUniversityRole_StoreFailureSurfaces(t *testing.T) {
	r, st := testResolver(t, 0)
	st.FailNext = assert.AnError

	role, err := r.UniversityRole(context.Background(), "user-1", "uni-1")
	require.Error(t, err)
	assert.Equal(t, RoleNone, role)
}

func TestProfileRole(t *testing.T) {
	r, st := testResolver(t, 0)
	ctx := context.Background()
	seedUniversity(t, st, "uni-1", "admin-1")
	seedProfile(t, st, &store.Profile{
		ID:              "prof-1",
		UniversityID:    "uni-1",
		Kind:            store.KindMemorial,
		Status:          store.StatusPublished,
		CreatedBy:       "creator-1",
		CollaboratorIDs: []string{"collab-1"},
	})

	cases := []struct {
		name   string
		userID string
		want   Role
	}{
		{"university admin", "admin-1", RoleAdmin},
		{"creator", "creator-1", RoleEditor},
		{"collaborator", "collab-1", RoleEditor},
		{"unrelated user on published profile", "stranger", RoleViewer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			role, err := r.ProfileRole(ctx, tc.userID, "prof-1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, role)
		})
	}
}

func TestProfileRole_DraftHiddenFromStrangers(t *testing.T) {
	r, st := testResolver(t, 0)
	seedProfile(t, st, &store.Profile{
		ID:        "prof-1",
		Kind:      store.KindPersonal,
		Status:    store.StatusDraft,
		CreatedBy: "creator-1",
	})

	role, err := r.ProfileRole(context.Background(), "stranger", "prof-1")
	require.NoError(t, err)
	assert.Equal(t, RoleNone, role)

	role, err = r.ProfileRole(context.Background(), "creator-1", "prof-1")
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, role)
}

func TestProfileRole_MissingResolvesToNone(t *testing.T) {
	r, _ := testResolver(t, 0)

	role, err := r.ProfileRole(context.Background(), "user-1", "no-such-profile")
	require.NoError(t, err)
	assert.Equal(t, RoleNone, role)
}

func TestProfileRole_Idempotent(t *testing.T) {
	r, st := testResolver(t, 0)
	seedProfile(t, st, &store.Profile{
		ID:        "prof-1",
		Status:    store.StatusPublished,
		CreatedBy: "creator-1",
	})

	first, err := r.ProfileRole(context.Background(), "creator-1", "prof-1")
	require.NoError(t, err)
	second, err := r.ProfileRole(context.Background(), "creator-1", "prof-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestProfileRole_CacheServesStaleUntilInvalidated(t *testing.T) {
	r, st := testResolver(t, time.Minute)
	ctx := context.Background()
	seedProfile(t, st, &store.Profile{
		ID:     "prof-1",
		Status: store.StatusPublished,
	})

	role, err := r.ProfileRole(ctx, "user-1", "prof-1")
	require.NoError(t, err)
	require.Equal(t, RoleViewer, role)

	// The store changes under the cache; the cached viewer role survives.
	p, err := st.GetProfile(ctx, "prof-1")
	require.NoError(t, err)
	p.CollaboratorIDs = append(p.CollaboratorIDs, "user-1")
	require.NoError(t, st.CreateProfile(ctx, p))

	role, err = r.ProfileRole(ctx, "user-1", "prof-1")
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, role)

	r.Invalidate("user-1")
	role, err = r.ProfileRole(ctx, "user-1", "prof-1")
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, role)
}

func TestInvalidate_OnlyDropsNamedUser(t *testing.T) {
	r, st := testResolver(t, time.Minute)
	ctx := context.Background()
	seedProfile(t, st, &store.Profile{ID: "prof-1", Status: store.StatusPublished})

	_, err := r.ProfileRole(ctx, "user-1", "prof-1")
	require.NoError(t, err)
	_, err = r.ProfileRole(ctx, "user-2", "prof-1")
	require.NoError(t, err)

	r.Invalidate("user-1")

	_, ok := r.cached(cacheKey("user-1", "profile", "prof-1"))
	assert.False(t, ok)
	_, ok = r.cached(cacheKey("user-2", "profile", "prof-1"))
	assert.True(t, ok)
}

func TestInvalidateResource(t *testing.T) {
	r, st := testResolver(t, time.Minute)
	ctx := context.Background()
	seedProfile(t, st, &store.Profile{ID: "prof-1", Status: store.StatusPublished})
	seedProfile(t, st, &store.Profile{ID: "prof-2", Status: store.StatusPublished})

	_, err := r.ProfileRole(ctx, "user-1", "prof-1")
	require.NoError(t, err)
	_, err = r.ProfileRole(ctx, "user-1", "prof-2")
	require.NoError(t, err)

	r.InvalidateResource("profile", "prof-1")

	_, ok := r.cached(cacheKey("user-1", "profile", "prof-1"))
	assert.False(t, ok)
	_, ok = r.cached(cacheKey("user-1", "profile", "prof-2"))
	assert.True(t, ok)
}
