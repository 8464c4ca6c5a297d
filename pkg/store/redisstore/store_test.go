package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storiats/memoryvista/pkg/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client)
}

func TestUniversityRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.CreateUniversity(ctx, &store.University{
		ID:        "uni-1",
		Name:      "Miskatonic University",
		AdminIDs:  []string{"admin-1"},
		CreatedAt: now,
		UpdatedAt: now,
	}))

	u, err := s.GetUniversity(ctx, "uni-1")
	require.NoError(t, err)
	assert.Equal(t, "Miskatonic University", u.Name)
	assert.Equal(t, []string{"admin-1"}, u.AdminIDs)

	_, err = s.GetUniversity(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUniversityAdminMutations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUniversity(ctx, &store.University{
		ID: "uni-1", Name: "Miskatonic University", AdminIDs: []string{"admin-1"},
	}))

	require.NoError(t, s.AddUniversityAdmin(ctx, "uni-1", "admin-2"))
	// Adding twice stays idempotent.
	require.NoError(t, s.AddUniversityAdmin(ctx, "uni-1", "admin-2"))

	u, err := s.GetUniversity(ctx, "uni-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin-1", "admin-2"}, u.AdminIDs)

	require.NoError(t, s.RemoveUniversityAdmin(ctx, "uni-1", "admin-1"))
	u, err = s.GetUniversity(ctx, "uni-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin-2"}, u.AdminIDs)

	assert.ErrorIs(t, s.AddUniversityAdmin(ctx, "missing", "x"), store.ErrNotFound)
}

func TestProfileLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.CreateProfile(ctx, &store.Profile{
		ID:           "prof-1",
		UniversityID: "uni-1",
		Kind:         store.KindMemorial,
		Status:       store.StatusDraft,
		CreatedBy:    "creator-1",
		FullName:     "Ada Lovelace",
		CreatedAt:    now,
		UpdatedAt:    now,
	}))

	headline := "Mathematician"
	p, err := s.UpdateProfile(ctx, "prof-1", store.ProfileUpdate{Headline: &headline})
	require.NoError(t, err)
	assert.Equal(t, "Mathematician", p.Headline)
	assert.Equal(t, "Ada Lovelace", p.FullName)

	require.NoError(t, s.SetProfileStatus(ctx, "prof-1", store.StatusPublished))
	p, err = s.GetProfile(ctx, "prof-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPublished, p.Status)

	_, err = s.UpdateProfile(ctx, "missing", store.ProfileUpdate{Headline: &headline})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListProfilesByUniversity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i, id := range []string{"prof-b", "prof-a"} {
		require.NoError(t, s.CreateProfile(ctx, &store.Profile{
			ID:           id,
			UniversityID: "uni-1",
			Kind:         store.KindPersonal,
			Status:       store.StatusDraft,
			CreatedBy:    "creator-1",
			FullName:     "Person",
			CreatedAt:    base.Add(time.Duration(-i) * time.Hour),
			UpdatedAt:    base,
		}))
	}

	out, err := s.ListProfilesByUniversity(ctx, "uni-1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	// Ordered by creation time, oldest first.
	assert.Equal(t, "prof-a", out[0].ID)
	assert.Equal(t, "prof-b", out[1].ID)

	out, err = s.ListProfilesByUniversity(ctx, "empty-uni")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCollaborators(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProfile(ctx, &store.Profile{
		ID: "prof-1", Kind: store.KindMemorial, Status: store.StatusDraft,
		CreatedBy: "creator-1", FullName: "Ada Lovelace",
	}))

	err := s.Update(ctx, func(tx store.Tx) error {
		return tx.AddCollaborator("prof-1", "collab-1")
	})
	require.NoError(t, err)

	p, err := s.GetProfile(ctx, "prof-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"collab-1"}, p.CollaboratorIDs)

	require.NoError(t, s.RemoveCollaborator(ctx, "prof-1", "collab-1"))
	p, err = s.GetProfile(ctx, "prof-1")
	require.NoError(t, err)
	assert.Empty(t, p.CollaboratorIDs)

	err = s.Update(ctx, func(tx store.Tx) error {
		return tx.AddCollaborator("missing", "collab-1")
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRequestWorkflowDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	err := s.Update(ctx, func(tx store.Tx) error {
		stats, err := tx.StatsForUpdate("user-1")
		if err != nil {
			return err
		}
		if err := tx.PutRequest(&store.EditorRequest{
			ID:          "req-1",
			ProfileID:   "prof-1",
			UserID:      "user-1",
			Status:      store.RequestPending,
			Reason:      "family member",
			RequestedAt: now,
			UpdatedAt:   now,
		}); err != nil {
			return err
		}
		stats.TotalRequests++
		stats.PendingRequests++
		stats.LastRequestAt = &now
		return tx.PutStats(stats)
	})
	require.NoError(t, err)

	req, err := s.GetRequest(ctx, "prof-1", "req-1")
	require.NoError(t, err)
	assert.Equal(t, store.RequestPending, req.Status)
	assert.Equal(t, "family member", req.Reason)

	stats, err := s.GetRequestStats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRequests)
	assert.Equal(t, 1, stats.PendingRequests)

	byProfile, err := s.ListRequestsByProfile(ctx, "prof-1")
	require.NoError(t, err)
	require.Len(t, byProfile, 1)

	byUser, err := s.ListRequestsByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "req-1", byUser[0].ID)
}

func TestStatsForNewUserIsZeroValue(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.GetRequestStats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", stats.UserID)
	assert.Zero(t, stats.TotalRequests)
	assert.Nil(t, stats.CooldownUntil)
}

func TestUpdate_DomainErrorAborts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx store.Tx) error {
		_, err := tx.RequestForUpdate("prof-1", "missing")
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPendingIndexFollowsStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-60 * 24 * time.Hour).UTC().Truncate(time.Second)
	fresh := time.Now().UTC().Truncate(time.Second)

	put := func(id string, at time.Time) {
		err := s.Update(ctx, func(tx store.Tx) error {
			return tx.PutRequest(&store.EditorRequest{
				ID:          id,
				ProfileID:   "prof-1",
				UserID:      "user-1",
				Status:      store.RequestPending,
				RequestedAt: at,
				UpdatedAt:   at,
			})
		})
		require.NoError(t, err)
	}
	put("req-old", old)
	put("req-fresh", fresh)

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	stale, err := s.ListStalePending(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "req-old", stale[0].ID)

	// Deciding the request drops it from the pending index.
	err = s.Update(ctx, func(tx store.Tx) error {
		return tx.SetRequestStatus("prof-1", "req-old", store.RequestRejected, "janitor")
	})
	require.NoError(t, err)

	stale, err = s.ListStalePending(ctx, cutoff)
	require.NoError(t, err)
	assert.Empty(t, stale)

	req, err := s.GetRequest(ctx, "prof-1", "req-old")
	require.NoError(t, err)
	assert.Equal(t, store.RequestRejected, req.Status)
	assert.Equal(t, "janitor", req.DecidedBy)
}

func TestSetRequestStatus_MissingRequest(t *testing.T) {
	s := newTestStore(t)

	err := s.Update(context.Background(), func(tx store.Tx) error {
		return tx.SetRequestStatus("prof-1", "missing", store.RequestApproved, "admin-1")
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCorruptDocument(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	s := New(client)

	require.NoError(t, mr.Set(profileKey("prof-1"), "{not json"))
	_, err := s.GetProfile(context.Background(), "prof-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}
