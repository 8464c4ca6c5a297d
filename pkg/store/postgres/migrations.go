package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the schema migrations in order.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create universities tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS universities (
					id VARCHAR(64) PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS university_admins (
					university_id VARCHAR(64) NOT NULL REFERENCES universities(id) ON DELETE CASCADE,
					user_id VARCHAR(64) NOT NULL,
					granted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					PRIMARY KEY (university_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_university_admins_user_id ON university_admins(user_id);
			`,
		},
		{
			Version:     2,
			Description: "Create profiles tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS profiles (
					id VARCHAR(64) PRIMARY KEY,
					university_id VARCHAR(64) REFERENCES universities(id) ON DELETE SET NULL,
					kind VARCHAR(20) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'draft',
					created_by VARCHAR(64) NOT NULL,
					full_name VARCHAR(255) NOT NULL,
					headline VARCHAR(255),
					biography TEXT,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS profile_collaborators (
					profile_id VARCHAR(64) NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
					user_id VARCHAR(64) NOT NULL,
					granted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					PRIMARY KEY (profile_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_profiles_university_id ON profiles(university_id);
				CREATE INDEX IF NOT EXISTS idx_profiles_created_by ON profiles(created_by);
				CREATE INDEX IF NOT EXISTS idx_profile_collaborators_user_id ON profile_collaborators(user_id);
			`,
		},
		{
			Version:     3,
			Description: "Create editor request tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS editor_requests (
					id VARCHAR(64) PRIMARY KEY,
					profile_id VARCHAR(64) NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
					user_id VARCHAR(64) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'pending',
					reason TEXT,
					requested_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					decided_by VARCHAR(64)
				);

				CREATE TABLE IF NOT EXISTS editor_request_stats (
					user_id VARCHAR(64) PRIMARY KEY,
					total_requests INTEGER NOT NULL DEFAULT 0,
					pending_requests INTEGER NOT NULL DEFAULT 0 CHECK (pending_requests >= 0),
					last_request_at TIMESTAMP WITH TIME ZONE,
					cooldown_until TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX IF NOT EXISTS idx_editor_requests_profile_id ON editor_requests(profile_id);
				CREATE INDEX IF NOT EXISTS idx_editor_requests_user_id ON editor_requests(user_id);
				CREATE INDEX IF NOT EXISTS idx_editor_requests_status ON editor_requests(status);
			`,
		},
	}
}

// Migrate applies all pending migrations, tracking progress in a
// schema_migrations table.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	for _, m := range Migrations() {
		var exists bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
