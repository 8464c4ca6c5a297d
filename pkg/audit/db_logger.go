package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBLogger writes audit events to a PostgreSQL table.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger and ensures the
// audit_events table exists.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	l := &DBLogger{db: db}
	if err := l.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}
	return l, nil
}

func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		actor_id VARCHAR(64),
		subject_id VARCHAR(64),
		resource_type VARCHAR(50),
		resource_id VARCHAR(64),
		profile_id VARCHAR(64),
		message TEXT,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_events_actor_id ON audit_events(actor_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_resource ON audit_events(resource_type, resource_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_profile_id ON audit_events(profile_id);
	`
	_, err := l.db.Exec(query)
	return err
}

// Log inserts the event. Failures are returned to the caller, which logs
// and continues; audit write failures never abort the audited operation.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var metadata interface{}
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = string(raw)
	}

	query := `
		INSERT INTO audit_events (timestamp, event_type, status, actor_id, subject_id, resource_type, resource_id, profile_id, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err := l.db.QueryRowContext(ctx, query,
		event.Timestamp,
		event.Type,
		event.Status,
		nullIfEmpty(event.ActorID),
		nullIfEmpty(event.SubjectID),
		nullIfEmpty(string(event.ResourceType)),
		nullIfEmpty(event.ResourceID),
		nullIfEmpty(event.ProfileID),
		nullIfEmpty(event.Message),
		metadata,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Query returns recent events for a resource, newest first.
func (l *DBLogger) Query(ctx context.Context, resourceType ResourceType, resourceID string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, timestamp, event_type, status, actor_id, subject_id, resource_type, resource_id, profile_id, message, metadata
		FROM audit_events
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY timestamp DESC
		LIMIT $3
	`
	rows, err := l.db.QueryContext(ctx, query, resourceType, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			ev                                                     Event
			actor, subject, resType, resID, profileID, msg, rawMeta sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.Type, &ev.Status,
			&actor, &subject, &resType, &resID, &profileID, &msg, &rawMeta); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		ev.ActorID = actor.String
		ev.SubjectID = subject.String
		ev.ResourceType = ResourceType(resType.String)
		ev.ResourceID = resID.String
		ev.ProfileID = profileID.String
		ev.Message = msg.String
		if rawMeta.Valid && rawMeta.String != "" {
			if err := json.Unmarshal([]byte(rawMeta.String), &ev.Metadata); err != nil {
				ev.Metadata = nil
			}
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (l *DBLogger) Close() error { return nil }

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
