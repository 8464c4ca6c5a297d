package postgres

import (
	"context"
	"database/sql"

	"github.com/storiats/memoryvista/pkg/store"
)

// pgTx implements store.Tx over one SQL transaction.
type pgTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *pgTx) StatsForUpdate(userID string) (*store.RequestStats, error) {
	// A first-time user has no stats row, and FOR UPDATE on zero rows locks
	// nothing, so concurrent first submissions would race past each other.
	// Seed the row so there is always something to lock.
	if _, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO editor_request_stats (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return nil, unavailable("seed request stats", err)
	}

	stats := &store.RequestStats{UserID: userID}
	var lastRequestAt, cooldownUntil sql.NullTime
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT total_requests, pending_requests, last_request_at, cooldown_until
		FROM editor_request_stats WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&stats.TotalRequests, &stats.PendingRequests, &lastRequestAt, &cooldownUntil)
	if err != nil {
		return nil, unavailable("lock request stats", err)
	}
	if lastRequestAt.Valid {
		v := lastRequestAt.Time
		stats.LastRequestAt = &v
	}
	if cooldownUntil.Valid {
		v := cooldownUntil.Time
		stats.CooldownUntil = &v
	}
	return stats, nil
}

func (t *pgTx) PutStats(stats *store.RequestStats) error {
	var lastRequestAt, cooldownUntil interface{}
	if stats.LastRequestAt != nil {
		lastRequestAt = *stats.LastRequestAt
	}
	if stats.CooldownUntil != nil {
		cooldownUntil = *stats.CooldownUntil
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO editor_request_stats (user_id, total_requests, pending_requests, last_request_at, cooldown_until)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			total_requests = EXCLUDED.total_requests,
			pending_requests = EXCLUDED.pending_requests,
			last_request_at = EXCLUDED.last_request_at,
			cooldown_until = EXCLUDED.cooldown_until
	`, stats.UserID, stats.TotalRequests, stats.PendingRequests, lastRequestAt, cooldownUntil)
	if err != nil {
		return unavailable("put request stats", err)
	}
	return nil
}

func (t *pgTx) PutRequest(req *store.EditorRequest) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO editor_requests (id, profile_id, user_id, status, reason, requested_at, updated_at, decided_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, req.ID, req.ProfileID, req.UserID, req.Status, nullString(req.Reason),
		req.RequestedAt, req.UpdatedAt, nullString(req.DecidedBy))
	if err != nil {
		return unavailable("put request", err)
	}
	return nil
}

func (t *pgTx) RequestForUpdate(profileID, requestID string) (*store.EditorRequest, error) {
	return scanRequest(t.tx.QueryRowContext(t.ctx, `
		SELECT id, profile_id, user_id, status, reason, requested_at, updated_at, decided_by
		FROM editor_requests WHERE profile_id = $1 AND id = $2 FOR UPDATE
	`, profileID, requestID))
}

func (t *pgTx) SetRequestStatus(profileID, requestID string, status store.RequestStatus, decidedBy string) error {
	result, err := t.tx.ExecContext(t.ctx, `
		UPDATE editor_requests SET status = $3, decided_by = $4, updated_at = NOW()
		WHERE profile_id = $1 AND id = $2
	`, profileID, requestID, status, nullString(decidedBy))
	if err != nil {
		return unavailable("set request status", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return unavailable("set request status", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) AddCollaborator(profileID, userID string) error {
	result, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO profile_collaborators (profile_id, user_id)
		SELECT $1, $2 WHERE EXISTS (SELECT 1 FROM profiles WHERE id = $1)
		ON CONFLICT (profile_id, user_id) DO NOTHING
	`, profileID, userID)
	if err != nil {
		return unavailable("add collaborator", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return unavailable("add collaborator", err)
	}
	if affected == 0 {
		var exists bool
		if err := t.tx.QueryRowContext(t.ctx,
			`SELECT EXISTS(SELECT 1 FROM profiles WHERE id = $1)`, profileID).Scan(&exists); err != nil {
			return unavailable("check profile", err)
		}
		if !exists {
			return store.ErrNotFound
		}
	}
	return nil
}
