package audit

import (
	"time"
)

// EventType categorizes an audit event.
type EventType string

const (
	EventRequestSubmit  EventType = "request.submit"
	EventRequestApprove EventType = "request.approve"
	EventRequestReject  EventType = "request.reject"
	EventRequestExpire  EventType = "request.expire"

	EventRoleGrant  EventType = "role.grant"
	EventRoleRevoke EventType = "role.revoke"

	EventProfileCreate    EventType = "profile.create"
	EventProfilePublish   EventType = "profile.publish"
	EventProfileUnpublish EventType = "profile.unpublish"

	EventUniversityCreate EventType = "university.create"

	EventAccessDenied EventType = "access.denied"
)

// Status represents the outcome of the audited action.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusDenied  Status = "denied"
)

// ResourceType identifies what kind of resource an event touched.
type ResourceType string

const (
	ResourceUniversity ResourceType = "university"
	ResourceProfile    ResourceType = "profile"
	ResourceRequest    ResourceType = "editor_request"
)

// Event is a single audit log entry.
type Event struct {
	ID           int64             `json:"id,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	Type         EventType         `json:"type"`
	Status       Status            `json:"status"`
	ActorID      string            `json:"actor_id,omitempty"`
	SubjectID    string            `json:"subject_id,omitempty"`
	ResourceType ResourceType      `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	ProfileID    string            `json:"profile_id,omitempty"`
	Message      string            `json:"message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}
