// Package audit records security-relevant actions: editor-request
// transitions, role grants and revocations, publication changes, and denied
// access attempts. Destinations are pluggable; database, file, and fan-out
// loggers are provided.
package audit

import (
	"context"
)

// Logger is the interface audit destinations implement.
type Logger interface {
	// Log records one audit event. Implementations must not block the
	// caller on destination failures longer than necessary; the caller
	// treats errors as non-fatal.
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the destination.
	Close() error
}

// NopLogger discards all events.
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }

func (NopLogger) Close() error { return nil }
