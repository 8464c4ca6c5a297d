// Package postgres implements the document-store port on PostgreSQL.
// Multi-document transactions use SQL transactions with row locks so the
// editor-request invariants hold under concurrent writers.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/storiats/memoryvista/pkg/store"
)

// Store is the PostgreSQL adapter.
type Store struct {
	db *sql.DB
}

// New creates a Store over an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to the given URL, verifies the connection, and applies
// migrations.
func Open(ctx context.Context, url string, maxConns int) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres not reachable: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// DB exposes the underlying pool for components that share it, such as the
// audit logger.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) GetUniversity(ctx context.Context, id string) (*store.University, error) {
	u := &store.University{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM universities WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get university", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM university_admins WHERE university_id = $1 ORDER BY granted_at ASC`, id)
	if err != nil {
		return nil, unavailable("get university admins", err)
	}
	defer rows.Close()
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, unavailable("scan university admin", err)
		}
		u.AdminIDs = append(u.AdminIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("get university admins", err)
	}
	return u, nil
}

func (s *Store) CreateUniversity(ctx context.Context, u *store.University) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("create university", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO universities (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Name, u.CreatedAt, u.UpdatedAt,
	); err != nil {
		return unavailable("create university", err)
	}
	for _, adminID := range u.AdminIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO university_admins (university_id, user_id) VALUES ($1, $2)`,
			u.ID, adminID,
		); err != nil {
			return unavailable("create university admin", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("create university", err)
	}
	return nil
}

func (s *Store) AddUniversityAdmin(ctx context.Context, universityID, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO university_admins (university_id, user_id)
		SELECT $1, $2 WHERE EXISTS (SELECT 1 FROM universities WHERE id = $1)
		ON CONFLICT (university_id, user_id) DO NOTHING
	`, universityID, userID)
	if err != nil {
		return unavailable("add university admin", err)
	}
	return s.requireUniversity(ctx, universityID, result)
}

func (s *Store) RemoveUniversityAdmin(ctx context.Context, universityID, userID string) error {
	if err := s.universityExists(ctx, universityID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM university_admins WHERE university_id = $1 AND user_id = $2`,
		universityID, userID,
	); err != nil {
		return unavailable("remove university admin", err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (*store.Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `
		SELECT id, university_id, kind, status, created_by, full_name, headline, biography, created_at, updated_at
		FROM profiles WHERE id = $1
	`, id))
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM profile_collaborators WHERE profile_id = $1 ORDER BY granted_at ASC`, id)
	if err != nil {
		return nil, unavailable("get profile collaborators", err)
	}
	defer rows.Close()
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, unavailable("scan profile collaborator", err)
		}
		p.CollaboratorIDs = append(p.CollaboratorIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("get profile collaborators", err)
	}
	return p, nil
}

func (s *Store) CreateProfile(ctx context.Context, p *store.Profile) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, university_id, kind, status, created_by, full_name, headline, biography, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		p.ID, nullString(p.UniversityID), p.Kind, p.Status, p.CreatedBy,
		p.FullName, nullString(p.Headline), nullString(p.Biography),
		p.CreatedAt, p.UpdatedAt,
	); err != nil {
		return unavailable("create profile", err)
	}
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, id string, upd store.ProfileUpdate) (*store.Profile, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET
			full_name = COALESCE($2, full_name),
			headline = COALESCE($3, headline),
			biography = COALESCE($4, biography),
			updated_at = NOW()
		WHERE id = $1
	`, id, upd.FullName, upd.Headline, upd.Biography)
	if err != nil {
		return nil, unavailable("update profile", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, unavailable("update profile", err)
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProfile(ctx, id)
}

func (s *Store) SetProfileStatus(ctx context.Context, id string, status store.ProfileStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return unavailable("set profile status", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return unavailable("set profile status", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RemoveCollaborator(ctx context.Context, profileID, userID string) error {
	if err := s.profileExists(ctx, profileID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM profile_collaborators WHERE profile_id = $1 AND user_id = $2`,
		profileID, userID,
	); err != nil {
		return unavailable("remove collaborator", err)
	}
	return nil
}

func (s *Store) ListProfilesByUniversity(ctx context.Context, universityID string) ([]*store.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, university_id, kind, status, created_by, full_name, headline, biography, created_at, updated_at
		FROM profiles WHERE university_id = $1 ORDER BY created_at ASC
	`, universityID)
	if err != nil {
		return nil, unavailable("list profiles", err)
	}
	defer rows.Close()

	var out []*store.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetRequest(ctx context.Context, profileID, requestID string) (*store.EditorRequest, error) {
	return scanRequest(s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, user_id, status, reason, requested_at, updated_at, decided_by
		FROM editor_requests WHERE profile_id = $1 AND id = $2
	`, profileID, requestID))
}

func (s *Store) GetRequestStats(ctx context.Context, userID string) (*store.RequestStats, error) {
	stats := &store.RequestStats{UserID: userID}
	var lastRequestAt, cooldownUntil sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT total_requests, pending_requests, last_request_at, cooldown_until
		FROM editor_request_stats WHERE user_id = $1
	`, userID).Scan(&stats.TotalRequests, &stats.PendingRequests, &lastRequestAt, &cooldownUntil)
	if err == sql.ErrNoRows {
		return stats, nil
	}
	if err != nil {
		return nil, unavailable("get request stats", err)
	}
	if lastRequestAt.Valid {
		t := lastRequestAt.Time
		stats.LastRequestAt = &t
	}
	if cooldownUntil.Valid {
		t := cooldownUntil.Time
		stats.CooldownUntil = &t
	}
	return stats, nil
}

func (s *Store) ListRequestsByProfile(ctx context.Context, profileID string) ([]*store.EditorRequest, error) {
	return s.listRequests(ctx, `
		SELECT id, profile_id, user_id, status, reason, requested_at, updated_at, decided_by
		FROM editor_requests WHERE profile_id = $1 ORDER BY requested_at ASC
	`, profileID)
}

func (s *Store) ListRequestsByUser(ctx context.Context, userID string) ([]*store.EditorRequest, error) {
	return s.listRequests(ctx, `
		SELECT id, profile_id, user_id, status, reason, requested_at, updated_at, decided_by
		FROM editor_requests WHERE user_id = $1 ORDER BY requested_at ASC
	`, userID)
}

func (s *Store) ListStalePending(ctx context.Context, cutoff time.Time) ([]*store.EditorRequest, error) {
	return s.listRequests(ctx, `
		SELECT id, profile_id, user_id, status, reason, requested_at, updated_at, decided_by
		FROM editor_requests WHERE status = 'pending' AND requested_at < $1 ORDER BY requested_at ASC
	`, cutoff)
}

func (s *Store) listRequests(ctx context.Context, query string, arg interface{}) ([]*store.EditorRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, unavailable("list requests", err)
	}
	defer rows.Close()

	var out []*store.EditorRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Update runs fn inside a SQL transaction. Row locks taken by the Tx
// methods serialize concurrent workflows on the same documents.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&pgTx{ctx: ctx, tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return unavailable("commit transaction", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) universityExists(ctx context.Context, id string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM universities WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return unavailable("check university", err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) profileExists(ctx context.Context, id string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM profiles WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return unavailable("check profile", err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) requireUniversity(ctx context.Context, universityID string, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return unavailable("add university admin", err)
	}
	if affected == 0 {
		// Either the university is missing or the admin already exists;
		// disambiguate with an existence check.
		return s.universityExists(ctx, universityID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*store.Profile, error) {
	p := &store.Profile{}
	var universityID, headline, biography sql.NullString
	err := row.Scan(&p.ID, &universityID, &p.Kind, &p.Status, &p.CreatedBy,
		&p.FullName, &headline, &biography, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("scan profile", err)
	}
	p.UniversityID = universityID.String
	p.Headline = headline.String
	p.Biography = biography.String
	return p, nil
}

func scanRequest(row rowScanner) (*store.EditorRequest, error) {
	req := &store.EditorRequest{}
	var reason, decidedBy sql.NullString
	err := row.Scan(&req.ID, &req.ProfileID, &req.UserID, &req.Status,
		&reason, &req.RequestedAt, &req.UpdatedAt, &decidedBy)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("scan request", err)
	}
	req.Reason = reason.String
	req.DecidedBy = decidedBy.String
	return req, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func unavailable(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return &store.UnavailableError{Op: op, Err: err}
}
