package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLogger(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLogger(FileLoggerConfig{BasePath: dir})
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	require.NoError(t, l.Log(ctx, &Event{
		Type:       EventRequestSubmit,
		Status:     StatusSuccess,
		ActorID:    "user-1",
		ResourceID: "req-1",
	}))
	require.NoError(t, l.Log(ctx, &Event{
		Type:    EventAccessDenied,
		Status:  StatusDenied,
		ActorID: "user-2",
	}))

	f, err := os.Open(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 2)
	assert.Equal(t, EventRequestSubmit, events[0].Type)
	assert.Equal(t, "user-1", events[0].ActorID)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, StatusDenied, events[1].Status)
}

func TestFileLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLogger(FileLoggerConfig{BasePath: dir, MaxSize: 64})
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Log(ctx, &Event{
			Type:      EventRequestSubmit,
			Status:    StatusSuccess,
			ActorID:   "user-with-a-reasonably-long-identifier",
			Timestamp: time.Now(),
		}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Greater(t, len(entries), 1, "expected rotated log files")
}

func TestMultiLogger(t *testing.T) {
	dir := t.TempDir()
	fileLog, err := NewFileLogger(FileLoggerConfig{BasePath: dir})
	require.NoError(t, err)

	failing := &failingLogger{}
	m := NewMultiLogger(failing, fileLog)

	err = m.Log(context.Background(), &Event{Type: EventRoleGrant, Status: StatusSuccess})
	assert.Error(t, err)

	// Delivery to the healthy destination still happened.
	raw, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), string(EventRoleGrant))

	require.NoError(t, fileLog.Close())
}

type failingLogger struct{}

func (f *failingLogger) Log(ctx context.Context, event *Event) error {
	return assert.AnError
}

func (f *failingLogger) Close() error { return nil }

func TestNopLogger(t *testing.T) {
	l := NopLogger{}
	assert.NoError(t, l.Log(context.Background(), &Event{}))
	assert.NoError(t, l.Close())
}
