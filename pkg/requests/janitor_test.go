package requests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storiats/memoryvista/pkg/store"
)

func TestExpireStale(t *testing.T) {
	f := newFixture(t, Config{MaxPendingRequests: 10, CooldownPeriod: time.Millisecond})
	ctx := context.Background()
	require.NoError(t, f.st.CreateProfile(ctx, &store.Profile{
		ID: "prof-2", Status: store.StatusPublished, CreatedBy: "creator-1",
	}))

	old, err := f.svc.Submit(ctx, "user-1", "prof-1", "")
	require.NoError(t, err)

	f.advance(40 * 24 * time.Hour)
	fresh, err := f.svc.Submit(ctx, "user-1", "prof-2", "")
	require.NoError(t, err)

	j := NewJanitor(f.st, nil, 30*24*time.Hour, testLogger())
	j.now = func() time.Time { return f.now }

	expired, err := j.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := f.st.GetRequest(ctx, "prof-1", old.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RequestRejected, got.Status)

	got, err = f.st.GetRequest(ctx, "prof-2", fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RequestPending, got.Status)

	stats, err := f.svc.Stats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PendingRequests)
}

func TestExpireStale_SkipsAlreadyDecided(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	req, err := f.svc.Submit(ctx, "user-1", "prof-1", "")
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, "admin-1", "prof-1", req.ID)
	require.NoError(t, err)

	f.advance(365 * 24 * time.Hour)
	j := NewJanitor(f.st, nil, 30*24*time.Hour, testLogger())
	j.now = func() time.Time { return f.now }

	expired, err := j.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestJanitor_StartRejectsBadSpec(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	j := NewJanitor(f.st, nil, time.Hour, testLogger())

	assert.Error(t, j.Start("not a cron spec"))

	require.NoError(t, j.Start("@daily"))
	j.Stop()
}
