package store

import (
	"time"
)

// ProfileKind distinguishes the two profile flavors.
type ProfileKind string

const (
	KindPersonal ProfileKind = "personal"
	KindMemorial ProfileKind = "memorial"
)

// ProfileStatus represents the publication state of a profile. Profiles are
// never hard-deleted; they only move between statuses.
type ProfileStatus string

const (
	StatusDraft     ProfileStatus = "draft"
	StatusPublished ProfileStatus = "published"
)

// RequestStatus represents the state of an editor request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// University represents an institution on whose behalf profiles are managed.
type University struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AdminIDs  []string  `json:"admin_ids"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether userID is in the university's admin set.
func (u *University) IsAdmin(userID string) bool {
	for _, id := range u.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Profile represents a memorial or personal profile.
type Profile struct {
	ID              string        `json:"id"`
	UniversityID    string        `json:"university_id,omitempty"`
	Kind            ProfileKind   `json:"kind"`
	Status          ProfileStatus `json:"status"`
	CreatedBy       string        `json:"created_by"`
	FullName        string        `json:"full_name"`
	Headline        string        `json:"headline,omitempty"`
	Biography       string        `json:"biography,omitempty"`
	CollaboratorIDs []string      `json:"collaborator_ids"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// IsCollaborator reports whether userID has been granted editor access.
func (p *Profile) IsCollaborator(userID string) bool {
	for _, id := range p.CollaboratorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// EditorRequest represents a user's request for editor access to one profile.
type EditorRequest struct {
	ID          string        `json:"id"`
	ProfileID   string        `json:"profile_id"`
	UserID      string        `json:"user_id"`
	Status      RequestStatus `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	RequestedAt time.Time     `json:"requested_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	DecidedBy   string        `json:"decided_by,omitempty"`
}

// RequestStats tracks a user's editor-request volume across all profiles.
// PendingRequests must always equal the number of that user's requests
// currently in RequestPending.
type RequestStats struct {
	UserID          string     `json:"user_id"`
	TotalRequests   int        `json:"total_requests"`
	PendingRequests int        `json:"pending_requests"`
	LastRequestAt   *time.Time `json:"last_request_at,omitempty"`
	CooldownUntil   *time.Time `json:"cooldown_until,omitempty"`
}

// InCooldown reports whether the cooldown timer blocks new requests at the
// given instant.
func (s *RequestStats) InCooldown(now time.Time) bool {
	return s.CooldownUntil != nil && now.Before(*s.CooldownUntil)
}

// ProfileUpdate carries the mutable profile fields for a partial update.
// Nil fields are left untouched.
type ProfileUpdate struct {
	FullName  *string `json:"full_name,omitempty"`
	Headline  *string `json:"headline,omitempty"`
	Biography *string `json:"biography,omitempty"`
}
