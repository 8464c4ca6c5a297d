package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storiats/memoryvista/pkg/store"
)

func TestUpdate_DiscardsWritesOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("closure failed")

	err := s.Update(ctx, func(tx store.Tx) error {
		if err := tx.PutRequest(&store.EditorRequest{
			ID: "req-1", ProfileID: "prof-1", UserID: "user-1", Status: store.RequestPending,
		}); err != nil {
			return err
		}
		stats, err := tx.StatsForUpdate("user-1")
		if err != nil {
			return err
		}
		stats.TotalRequests++
		stats.PendingRequests++
		if err := tx.PutStats(stats); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// Nothing from the aborted transaction is visible.
	_, err = s.GetRequest(ctx, "prof-1", "req-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	stats, err := s.GetRequestStats(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRequests)
	assert.Zero(t, stats.PendingRequests)
}

func TestUpdate_ReadsSeeOwnWrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.Update(ctx, func(tx store.Tx) error {
		if err := tx.PutRequest(&store.EditorRequest{
			ID: "req-1", ProfileID: "prof-1", UserID: "user-1", Status: store.RequestPending,
		}); err != nil {
			return err
		}
		req, err := tx.RequestForUpdate("prof-1", "req-1")
		if err != nil {
			return err
		}
		if req.Status != store.RequestPending {
			return errors.New("staged write not visible in transaction")
		}
		return tx.SetRequestStatus("prof-1", "req-1", store.RequestApproved, "admin-1")
	})
	require.NoError(t, err)

	req, err := s.GetRequest(ctx, "prof-1", "req-1")
	require.NoError(t, err)
	assert.Equal(t, store.RequestApproved, req.Status)
	assert.Equal(t, "admin-1", req.DecidedBy)
}

func TestUpdate_CollaboratorRollback(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateProfile(ctx, &store.Profile{
		ID: "prof-1", Kind: store.KindMemorial, Status: store.StatusDraft, CreatedBy: "creator-1",
	}))

	boom := errors.New("abort")
	err := s.Update(ctx, func(tx store.Tx) error {
		if err := tx.AddCollaborator("prof-1", "user-1"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	p, err := s.GetProfile(ctx, "prof-1")
	require.NoError(t, err)
	assert.Empty(t, p.CollaboratorIDs)
}
