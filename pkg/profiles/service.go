package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/storiats/memoryvista/pkg/access"
	"github.com/storiats/memoryvista/pkg/audit"
	"github.com/storiats/memoryvista/pkg/store"
)

// ErrNotFound is returned when a profile is absent or the caller is not
// allowed to see it. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("profile not found")

// ErrUnauthorized is returned when the caller may see the profile but not
// perform the attempted mutation.
var ErrUnauthorized = errors.New("not permitted")

// ErrInvalidKind is returned for an unknown profile kind.
var ErrInvalidKind = errors.New("invalid profile kind")

// ErrUnknownUniversity is returned when creating a profile under a
// university that does not exist.
var ErrUnknownUniversity = errors.New("university does not exist")

// CreateRequest carries the fields for a new profile.
type CreateRequest struct {
	UniversityID string            `json:"university_id,omitempty"`
	Kind         store.ProfileKind `json:"kind"`
	FullName     string            `json:"full_name"`
	Headline     string            `json:"headline,omitempty"`
	Biography    string            `json:"biography,omitempty"`
}

// Service manages profile lifecycle. Every mutation resolves the caller's
// role first and passes the edit gate before touching the store.
type Service struct {
	store    store.Store
	resolver *access.Resolver
	audit    audit.Logger
	log      *logrus.Entry
}

// NewService creates a profile service. audit may be nil.
func NewService(st store.Store, resolver *access.Resolver, auditLog audit.Logger, log *logrus.Logger) *Service {
	return &Service{
		store:    st,
		resolver: resolver,
		audit:    auditLog,
		log:      log.WithField("component", "profiles"),
	}
}

// Create creates a draft profile owned by the creator. When a university is
// named it must exist; the creator does not need a role on it.
func (s *Service) Create(ctx context.Context, creatorID string, req CreateRequest) (*store.Profile, error) {
	if req.Kind != store.KindPersonal && req.Kind != store.KindMemorial {
		return nil, ErrInvalidKind
	}
	if strings.TrimSpace(req.FullName) == "" {
		return nil, fmt.Errorf("full name is required")
	}
	if req.UniversityID != "" {
		if _, err := s.store.GetUniversity(ctx, req.UniversityID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrUnknownUniversity
			}
			return nil, err
		}
	}

	now := time.Now()
	p := &store.Profile{
		ID:           uuid.NewString(),
		UniversityID: req.UniversityID,
		Kind:         req.Kind,
		Status:       store.StatusDraft,
		CreatedBy:    creatorID,
		FullName:     req.FullName,
		Headline:     req.Headline,
		Biography:    req.Biography,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateProfile(ctx, p); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"profile_id": p.ID,
		"kind":       p.Kind,
		"created_by": creatorID,
	}).Info("profile created")
	s.auditEvent(ctx, audit.EventProfileCreate, creatorID, p.ID)
	return p, nil
}

// Get returns the profile if the caller may see it: drafts are visible only
// to users who can edit them, published profiles to everyone.
func (s *Service) Get(ctx context.Context, callerID, profileID string) (*store.Profile, error) {
	p, err := s.store.GetProfile(ctx, profileID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if p.Status == store.StatusPublished {
		return p, nil
	}
	role, err := s.resolver.ProfileRole(ctx, callerID, profileID)
	if err != nil {
		return nil, err
	}
	if !access.CanEdit(role) {
		return nil, ErrNotFound
	}
	return p, nil
}

// Update applies a partial update. Caller must pass the edit gate.
func (s *Service) Update(ctx context.Context, callerID, profileID string, upd store.ProfileUpdate) (*store.Profile, error) {
	if err := s.requireEdit(ctx, callerID, profileID); err != nil {
		return nil, err
	}
	p, err := s.store.UpdateProfile(ctx, profileID, upd)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return p, err
}

// Publish transitions the profile to published.
func (s *Service) Publish(ctx context.Context, callerID, profileID string) error {
	return s.setStatus(ctx, callerID, profileID, store.StatusPublished, audit.EventProfilePublish)
}

// Unpublish transitions the profile back to draft. Profiles are never
// hard-deleted; unpublishing is the strongest removal.
func (s *Service) Unpublish(ctx context.Context, callerID, profileID string) error {
	return s.setStatus(ctx, callerID, profileID, store.StatusDraft, audit.EventProfileUnpublish)
}

func (s *Service) setStatus(ctx context.Context, callerID, profileID string, status store.ProfileStatus, event audit.EventType) error {
	if err := s.requireEdit(ctx, callerID, profileID); err != nil {
		return err
	}
	if err := s.store.SetProfileStatus(ctx, profileID, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	// Publication changes who resolves to viewer.
	s.resolver.InvalidateResource("profile", profileID)
	s.auditEvent(ctx, event, callerID, profileID)
	return nil
}

// AddCollaborator grants editor access directly, bypassing the request
// workflow. Admin only.
func (s *Service) AddCollaborator(ctx context.Context, callerID, profileID, userID string) error {
	if err := s.requireAdmin(ctx, callerID, profileID); err != nil {
		return err
	}
	err := s.store.Update(ctx, func(tx store.Tx) error {
		return tx.AddCollaborator(profileID, userID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.resolver.Invalidate(userID)
	s.auditGrant(ctx, audit.EventRoleGrant, callerID, userID, profileID)
	return nil
}

// RemoveCollaborator revokes a previously granted editor role. Admin only.
func (s *Service) RemoveCollaborator(ctx context.Context, callerID, profileID, userID string) error {
	if err := s.requireAdmin(ctx, callerID, profileID); err != nil {
		return err
	}
	err := s.store.RemoveCollaborator(ctx, profileID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.resolver.Invalidate(userID)
	s.auditGrant(ctx, audit.EventRoleRevoke, callerID, userID, profileID)
	return nil
}

// ListByUniversity returns the university's profiles: all of them for
// university admins, published ones for everyone else.
func (s *Service) ListByUniversity(ctx context.Context, callerID, universityID string) ([]*store.Profile, error) {
	role, err := s.resolver.UniversityRole(ctx, callerID, universityID)
	if err != nil {
		return nil, err
	}
	all, err := s.store.ListProfilesByUniversity(ctx, universityID)
	if err != nil {
		return nil, err
	}
	if role == access.RoleAdmin {
		return all, nil
	}
	published := all[:0]
	for _, p := range all {
		if p.Status == store.StatusPublished {
			published = append(published, p)
		}
	}
	return published, nil
}

// Role returns the caller's effective role on the profile.
func (s *Service) Role(ctx context.Context, callerID, profileID string) (access.Role, error) {
	return s.resolver.ProfileRole(ctx, callerID, profileID)
}

func (s *Service) requireEdit(ctx context.Context, callerID, profileID string) error {
	role, err := s.resolver.ProfileRole(ctx, callerID, profileID)
	if err != nil {
		return err
	}
	if !access.CanEdit(role) {
		s.auditDenied(ctx, callerID, profileID)
		return ErrNotFound
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, callerID, profileID string) error {
	role, err := s.resolver.ProfileRole(ctx, callerID, profileID)
	if err != nil {
		return err
	}
	if role != access.RoleAdmin && role != access.RoleEditor {
		s.auditDenied(ctx, callerID, profileID)
		return ErrNotFound
	}
	// Only the university admin or the profile owner may manage grants.
	if role == access.RoleEditor {
		p, err := s.store.GetProfile(ctx, profileID)
		if err != nil {
			return err
		}
		if p.CreatedBy != callerID {
			s.auditDenied(ctx, callerID, profileID)
			return ErrUnauthorized
		}
	}
	return nil
}

func (s *Service) auditEvent(ctx context.Context, event audit.EventType, actorID, profileID string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Log(ctx, &audit.Event{
		Type:         event,
		Status:       audit.StatusSuccess,
		ActorID:      actorID,
		ResourceType: audit.ResourceProfile,
		ResourceID:   profileID,
		ProfileID:    profileID,
		Timestamp:    time.Now(),
	})
}

func (s *Service) auditGrant(ctx context.Context, event audit.EventType, actorID, subjectID, profileID string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Log(ctx, &audit.Event{
		Type:         event,
		Status:       audit.StatusSuccess,
		ActorID:      actorID,
		SubjectID:    subjectID,
		ResourceType: audit.ResourceProfile,
		ResourceID:   profileID,
		ProfileID:    profileID,
		Timestamp:    time.Now(),
	})
}

func (s *Service) auditDenied(ctx context.Context, actorID, profileID string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Log(ctx, &audit.Event{
		Type:         audit.EventAccessDenied,
		Status:       audit.StatusDenied,
		ActorID:      actorID,
		ResourceType: audit.ResourceProfile,
		ResourceID:   profileID,
		ProfileID:    profileID,
		Timestamp:    time.Now(),
	})
}
