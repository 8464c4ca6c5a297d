package universities

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storiats/memoryvista/pkg/access"
	"github.com/storiats/memoryvista/pkg/store"
	"github.com/storiats/memoryvista/pkg/store/memstore"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	resolver := access.NewResolver(st, 0, testLogger())
	return NewService(st, resolver, nil, testLogger()), st
}

func TestCreate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, "founder-1", "Miskatonic University")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, []string{"founder-1"}, u.AdminIDs)

	role, err := svc.Role(ctx, "founder-1", u.ID)
	require.NoError(t, err)
	assert.Equal(t, access.RoleAdmin, role)

	_, err = svc.Create(ctx, "founder-1", "  ")
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, "founder-1", "Miskatonic University")
	require.NoError(t, err)

	// Universities are public; no caller identity involved.
	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Miskatonic University", got.Name)

	_, err = svc.Get(ctx, "no-such-uni")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGrantAdmin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, "founder-1", "Miskatonic University")
	require.NoError(t, err)

	require.NoError(t, svc.GrantAdmin(ctx, "founder-1", u.ID, "admin-2"))

	role, err := svc.Role(ctx, "admin-2", u.ID)
	require.NoError(t, err)
	assert.Equal(t, access.RoleAdmin, role)

	// Non-admins get the same answer as for a missing university.
	err = svc.GrantAdmin(ctx, "stranger", u.ID, "admin-3")
	assert.ErrorIs(t, err, ErrNotFound)
	err = svc.GrantAdmin(ctx, "founder-1", "no-such-uni", "admin-3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRevokeAdmin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, "founder-1", "Miskatonic University")
	require.NoError(t, err)
	require.NoError(t, svc.GrantAdmin(ctx, "founder-1", u.ID, "admin-2"))

	require.NoError(t, svc.RevokeAdmin(ctx, "admin-2", u.ID, "founder-1"))

	role, err := svc.Role(ctx, "founder-1", u.ID)
	require.NoError(t, err)
	assert.Equal(t, access.RoleNone, role)
}

func TestRevokeAdmin_LastAdmin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, "founder-1", "Miskatonic University")
	require.NoError(t, err)

	err = svc.RevokeAdmin(ctx, "founder-1", u.ID, "founder-1")
	assert.ErrorIs(t, err, ErrLastAdmin)

	// Still an admin afterwards.
	role, err := svc.Role(ctx, "founder-1", u.ID)
	require.NoError(t, err)
	assert.Equal(t, access.RoleAdmin, role)
}

func TestStoreFailureSurfaces(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, "founder-1", "Miskatonic University")
	require.NoError(t, err)

	st.FailNext = assert.AnError
	_, err = svc.Get(ctx, u.ID)
	assert.True(t, store.IsUnavailable(err))
}
