package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDBLogger(t *testing.T) (*DBLogger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	l, err := NewDBLogger(db)
	require.NoError(t, err)
	return l, mock
}

func TestDBLogger_Log(t *testing.T) {
	l, mock := newDBLogger(t)

	mock.ExpectQuery("INSERT INTO audit_events").
		WithArgs(sqlmock.AnyArg(), "request.approve", "success", "admin-1", "user-1",
			"editor_request", "req-1", "prof-1", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	ev := &Event{
		Type:         EventRequestApprove,
		Status:       StatusSuccess,
		ActorID:      "admin-1",
		SubjectID:    "user-1",
		ResourceType: ResourceRequest,
		ResourceID:   "req-1",
		ProfileID:    "prof-1",
	}
	require.NoError(t, l.Log(context.Background(), ev))
	assert.Equal(t, int64(42), ev.ID)
	assert.False(t, ev.Timestamp.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_LogWithMetadata(t *testing.T) {
	l, mock := newDBLogger(t)

	mock.ExpectQuery("INSERT INTO audit_events").
		WithArgs(sqlmock.AnyArg(), "role.grant", "success", "admin-1", nil,
			nil, nil, nil, nil, `{"via":"workflow"}`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	err := l.Log(context.Background(), &Event{
		Type:     EventRoleGrant,
		Status:   StatusSuccess,
		ActorID:  "admin-1",
		Metadata: map[string]string{"via": "workflow"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_Query(t *testing.T) {
	l, mock := newDBLogger(t)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "timestamp", "event_type", "status", "actor_id", "subject_id",
		"resource_type", "resource_id", "profile_id", "message", "metadata",
	}).AddRow(int64(1), ts, "profile.publish", "success", "creator-1", nil,
		"profile", "prof-1", "prof-1", nil, nil)

	mock.ExpectQuery("SELECT (.+) FROM audit_events").
		WithArgs(ResourceProfile, "prof-1", 100).
		WillReturnRows(rows)

	events, err := l.Query(context.Background(), ResourceProfile, "prof-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventProfilePublish, events[0].Type)
	assert.Equal(t, "creator-1", events[0].ActorID)
	assert.Equal(t, ts, events[0].Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_InsertFailureSurfaces(t *testing.T) {
	l, mock := newDBLogger(t)

	mock.ExpectQuery("INSERT INTO audit_events").
		WillReturnError(assert.AnError)

	err := l.Log(context.Background(), &Event{Type: EventRequestSubmit, Status: StatusSuccess})
	assert.Error(t, err)
}

func TestNewDBLogger_RequiresDB(t *testing.T) {
	_, err := NewDBLogger(nil)
	assert.Error(t, err)
}
