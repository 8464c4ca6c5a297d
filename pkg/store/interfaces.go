package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a document does not exist. Callers that gate
// access must fold this into "no permission" rather than reporting it.
var ErrNotFound = errors.New("document not found")

// UnavailableError wraps a backend failure. The workflow surfaces it to
// callers as a generic retryable error.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err indicates a backend failure.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// Reader provides read-only access to documents. Role resolution only needs
// this capability.
type Reader interface {
	GetUniversity(ctx context.Context, id string) (*University, error)
	GetProfile(ctx context.Context, id string) (*Profile, error)
	GetRequest(ctx context.Context, profileID, requestID string) (*EditorRequest, error)
	GetRequestStats(ctx context.Context, userID string) (*RequestStats, error)
}

// Tx exposes the writes the editor-request workflow performs atomically.
// Every method operates within the transaction opened by Store.Update; none
// of the writes are visible until the closure returns nil.
type Tx interface {
	// StatsForUpdate reads the user's request stats with a write lock. A
	// user with no stats document yet gets a zero-valued RequestStats.
	StatsForUpdate(userID string) (*RequestStats, error)
	PutStats(stats *RequestStats) error
	PutRequest(req *EditorRequest) error
	// RequestForUpdate reads a request with a write lock.
	RequestForUpdate(profileID, requestID string) (*EditorRequest, error)
	SetRequestStatus(profileID, requestID string, status RequestStatus, decidedBy string) error
	AddCollaborator(profileID, userID string) error
}

// Store is the document-store port. Both hosted backends are modeled behind
// this single interface so the role and request logic exists exactly once.
type Store interface {
	Reader

	CreateUniversity(ctx context.Context, u *University) error
	AddUniversityAdmin(ctx context.Context, universityID, userID string) error
	RemoveUniversityAdmin(ctx context.Context, universityID, userID string) error

	CreateProfile(ctx context.Context, p *Profile) error
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*Profile, error)
	SetProfileStatus(ctx context.Context, id string, status ProfileStatus) error
	RemoveCollaborator(ctx context.Context, profileID, userID string) error
	ListProfilesByUniversity(ctx context.Context, universityID string) ([]*Profile, error)

	ListRequestsByProfile(ctx context.Context, profileID string) ([]*EditorRequest, error)
	ListRequestsByUser(ctx context.Context, userID string) ([]*EditorRequest, error)
	// ListStalePending returns pending requests requested before the cutoff.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]*EditorRequest, error)

	// Update runs fn inside the backend's native multi-document transaction.
	// If fn returns an error the transaction is rolled back and the error is
	// returned unchanged.
	Update(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
	Close() error
}
