// Package universities manages institutions and their admin sets. Admins
// are the only role universities carry; everything finer-grained lives on
// profiles.
package universities

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

// ErrNotFound is returned for absent universities and for callers without
// permission, identically.
var ErrNotFound = errors.New("university not found")

// ErrLastAdmin is returned when revoking the only remaining admin.
var ErrLastAdmin = errors.New("cannot remove the last admin")

// Service manages university documents and admin membership.
type Service struct {
	store    store.Store
	resolver *access.Resolver
	audit    audit.Logger
	log      *logrus.Entry
}

// NewService creates a university service. audit may be nil.
func NewService(st store.Store, resolver *access.Resolver, auditLog audit.Logger, log *logrus.Logger) *Service {
	return &Service{
		store:    st,
		resolver: resolver,
		audit:    auditLog,
		log:      log.WithField("component", "universities"),
	}
}

// Create creates a university with the creator as its first admin.
func (s *Service) Create(ctx context.Context, creatorID, name string) (*store.University, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("university name is required")
	}
	now := time.Now()
	u := &store.University{
		ID:        uuid.NewString(),
		Name:      name,
		AdminIDs:  []string{creatorID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateUniversity(ctx, u); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"university_id": u.ID,
		"created_by":    creatorID,
	}).Info("university created")
	if s.audit != nil {
		_ = s.audit.Log(ctx, &audit.Event{
			Type:         audit.EventUniversityCreate,
			Status:       audit.StatusSuccess,
			ActorID:      creatorID,
			ResourceType: audit.ResourceUniversity,
			ResourceID:   u.ID,
			Timestamp:    now,
		})
	}
	return u, nil
}

// Get returns the university. Universities are public records; only their
// mutation is gated.
func (s *Service) Get(ctx context.Context, id string) (*store.University, error) {
	u, err := s.store.GetUniversity(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return u, err
}

// GrantAdmin adds a user to the admin set. Only existing admins may grant.
func (s *Service) GrantAdmin(ctx context.Context, callerID, universityID, userID string) error {
	if err := s.requireAdmin(ctx, callerID, universityID); err != nil {
		return err
	}
	if err := s.store.AddUniversityAdmin(ctx, universityID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.resolver.Invalidate(userID)
	s.auditRole(ctx, audit.EventRoleGrant, callerID, userID, universityID)
	return nil
}

// RevokeAdmin removes a user from the admin set. The last admin cannot be
// removed; a university must stay administrable.
func (s *Service) RevokeAdmin(ctx context.Context, callerID, universityID, userID string) error {
	if err := s.requireAdmin(ctx, callerID, universityID); err != nil {
		return err
	}
	u, err := s.store.GetUniversity(ctx, universityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if len(u.AdminIDs) == 1 && u.AdminIDs[0] == userID {
		return ErrLastAdmin
	}
	if err := s.store.RemoveUniversityAdmin(ctx, universityID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.resolver.Invalidate(userID)
	s.auditRole(ctx, audit.EventRoleRevoke, callerID, userID, universityID)
	return nil
}

// Role returns the caller's effective role on the university.
func (s *Service) Role(ctx context.Context, callerID, universityID string) (access.Role, error) {
	return s.resolver.UniversityRole(ctx, callerID, universityID)
}

func (s *Service) requireAdmin(ctx context.Context, callerID, universityID string) error {
	role, err := s.resolver.UniversityRole(ctx, callerID, universityID)
	if err != nil {
		return err
	}
	if role != access.RoleAdmin {
		if s.audit != nil {
			_ = s.audit.Log(ctx, &audit.Event{
				Type:         audit.EventAccessDenied,
				Status:       audit.StatusDenied,
				ActorID:      callerID,
				ResourceType: audit.ResourceUniversity,
				ResourceID:   universityID,
				Timestamp:    time.Now(),
			})
		}
		return ErrNotFound
	}
	return nil
}

func (s *Service) auditRole(ctx context.Context, event audit.EventType, actorID, subjectID, universityID string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Log(ctx, &audit.Event{
		Type:         event,
		Status:       audit.StatusSuccess,
		ActorID:      actorID,
		SubjectID:    subjectID,
		ResourceType: audit.ResourceUniversity,
		ResourceID:   universityID,
		Timestamp:    time.Now(),
	})
}
