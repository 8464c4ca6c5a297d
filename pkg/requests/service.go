package requests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/storiats/memoryvista/pkg/access"
	"github.com/storiats/memoryvista/pkg/audit"
	"github.com/storiats/memoryvista/pkg/store"
)

// ErrUnauthorized is returned when the caller's resolved role does not
// permit the attempted transition. API layers must render it exactly like a
// missing resource.
var ErrUnauthorized = errors.New("not permitted")

// ErrAlreadyEditor is returned when a user who already holds write access
// submits an editor request.
var ErrAlreadyEditor = errors.New("user already has editor access")

// ErrNotPending is returned when approving or rejecting a request that has
// already reached a terminal state.
var ErrNotPending = errors.New("request is not pending")

// RateLimitedError is returned when the pending cap or the cooldown timer
// blocks a new request. RetryAfter is zero when the cap (not the cooldown)
// was the blocker.
type RateLimitedError struct {
	Reason     string
	RetryAfter time.Time
}

func (e *RateLimitedError) Error() string { return e.Reason }

// Config carries the externally configured workflow constants.
type Config struct {
	// MaxPendingRequests caps a user's simultaneously pending requests
	// across all profiles.
	MaxPendingRequests int
	// CooldownPeriod blocks new submissions for this long after each
	// accepted submission.
	CooldownPeriod time.Duration
}

// DefaultConfig returns the workflow defaults.
func DefaultConfig() Config {
	return Config{
		MaxPendingRequests: 3,
		CooldownPeriod:     7 * 24 * time.Hour,
	}
}

// Service implements the editor-request workflow: a non-editor asks for
// elevated access to one profile, and a profile admin approves or rejects.
type Service struct {
	store    store.Store
	resolver *access.Resolver
	audit    audit.Logger
	cfg      Config
	log      *logrus.Entry
	now      func() time.Time
}

// NewService creates the workflow service. audit may be nil to disable
// audit logging.
func NewService(st store.Store, resolver *access.Resolver, auditLog audit.Logger, cfg Config, log *logrus.Logger) *Service {
	if cfg.MaxPendingRequests <= 0 {
		cfg.MaxPendingRequests = DefaultConfig().MaxPendingRequests
	}
	if cfg.CooldownPeriod <= 0 {
		cfg.CooldownPeriod = DefaultConfig().CooldownPeriod
	}
	return &Service{
		store:    st,
		resolver: resolver,
		audit:    auditLog,
		cfg:      cfg,
		log:      log.WithField("component", "requests"),
		now:      time.Now,
	}
}

// Submit creates a pending editor request for the user on the profile.
// The request document, the stats counters, and the cooldown timer are
// written in one store transaction so the pending cap holds under
// concurrent submissions from the same user.
func (s *Service) Submit(ctx context.Context, userID, profileID, reason string) (*store.EditorRequest, error) {
	role, err := s.resolver.ProfileRole(ctx, userID, profileID)
	if err != nil {
		return nil, err
	}
	if access.CanEdit(role) {
		return nil, ErrAlreadyEditor
	}

	// Fail closed: a request against a profile the user cannot see at all
	// is indistinguishable from a missing profile.
	if _, err := s.store.GetProfile(ctx, profileID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	now := s.now()
	req := &store.EditorRequest{
		ID:          uuid.NewString(),
		ProfileID:   profileID,
		UserID:      userID,
		Status:      store.RequestPending,
		Reason:      reason,
		RequestedAt: now,
		UpdatedAt:   now,
	}

	err = s.store.Update(ctx, func(tx store.Tx) error {
		stats, err := tx.StatsForUpdate(userID)
		if err != nil {
			return err
		}
		if stats.PendingRequests >= s.cfg.MaxPendingRequests {
			return &RateLimitedError{
				Reason: fmt.Sprintf("pending request limit of %d reached", s.cfg.MaxPendingRequests),
			}
		}
		if stats.InCooldown(now) {
			return &RateLimitedError{
				Reason:     "request cooldown active",
				RetryAfter: *stats.CooldownUntil,
			}
		}

		if err := tx.PutRequest(req); err != nil {
			return err
		}

		stats.TotalRequests++
		stats.PendingRequests++
		stats.LastRequestAt = &now
		cooldown := now.Add(s.cfg.CooldownPeriod)
		stats.CooldownUntil = &cooldown
		return tx.PutStats(stats)
	})
	if err != nil {
		s.auditRequest(ctx, audit.EventRequestSubmit, userID, req, err)
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"profile_id": profileID,
		"request_id": req.ID,
	}).Info("editor request submitted")
	s.auditRequest(ctx, audit.EventRequestSubmit, userID, req, nil)
	return req, nil
}

// Approve transitions a pending request to approved and grants the
// requester collaborator access. Only a university admin or the profile
// creator may approve.
func (s *Service) Approve(ctx context.Context, callerID, profileID, requestID string) (*store.EditorRequest, error) {
	return s.decide(ctx, callerID, profileID, requestID, store.RequestApproved)
}

// Reject transitions a pending request to rejected and releases the
// requester's pending slot. Only a university admin or the profile creator
// may reject.
func (s *Service) Reject(ctx context.Context, callerID, profileID, requestID string) (*store.EditorRequest, error) {
	return s.decide(ctx, callerID, profileID, requestID, store.RequestRejected)
}

// canDecide reports whether the caller may list or decide requests on the
// profile. University admins qualify, and so does the profile creator: a
// profile without a university has no admin, so the creator is the only
// possible decider there.
func (s *Service) canDecide(ctx context.Context, callerID, profileID string) error {
	role, err := s.resolver.ProfileRole(ctx, callerID, profileID)
	if err != nil {
		return err
	}
	if role == access.RoleAdmin {
		return nil
	}
	if role == access.RoleEditor {
		p, err := s.store.GetProfile(ctx, profileID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrUnauthorized
			}
			return err
		}
		if p.CreatedBy == callerID {
			return nil
		}
	}
	return ErrUnauthorized
}

func (s *Service) decide(ctx context.Context, callerID, profileID, requestID string, outcome store.RequestStatus) (*store.EditorRequest, error) {
	if err := s.canDecide(ctx, callerID, profileID); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			s.auditDenied(ctx, callerID, profileID, requestID)
		}
		return nil, err
	}

	var decided *store.EditorRequest
	err := s.store.Update(ctx, func(tx store.Tx) error {
		req, err := tx.RequestForUpdate(profileID, requestID)
		if err != nil {
			return err
		}
		if req.Status != store.RequestPending {
			return ErrNotPending
		}

		if outcome == store.RequestApproved {
			if err := tx.AddCollaborator(profileID, req.UserID); err != nil {
				return err
			}
		}
		if err := tx.SetRequestStatus(profileID, requestID, outcome, callerID); err != nil {
			return err
		}

		// Both terminal transitions release the pending slot so the
		// counter keeps matching the number of pending documents.
		stats, err := tx.StatsForUpdate(req.UserID)
		if err != nil {
			return err
		}
		if stats.PendingRequests > 0 {
			stats.PendingRequests--
		}
		if err := tx.PutStats(stats); err != nil {
			return err
		}

		req.Status = outcome
		req.DecidedBy = callerID
		decided = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome == store.RequestApproved {
		s.resolver.Invalidate(decided.UserID)
	}

	event := audit.EventRequestReject
	if outcome == store.RequestApproved {
		event = audit.EventRequestApprove
	}
	s.auditRequest(ctx, event, callerID, decided, nil)
	s.log.WithFields(logrus.Fields{
		"caller_id":  callerID,
		"request_id": requestID,
		"status":     outcome,
	}).Info("editor request decided")
	return decided, nil
}

// ListByProfile returns all requests on a profile. University admins and
// the profile creator only.
func (s *Service) ListByProfile(ctx context.Context, callerID, profileID string) ([]*store.EditorRequest, error) {
	if err := s.canDecide(ctx, callerID, profileID); err != nil {
		return nil, err
	}
	return s.store.ListRequestsByProfile(ctx, profileID)
}

// ListMine returns the caller's own requests across all profiles.
func (s *Service) ListMine(ctx context.Context, callerID string) ([]*store.EditorRequest, error) {
	return s.store.ListRequestsByUser(ctx, callerID)
}

// Stats returns the caller's request counters and cooldown state.
func (s *Service) Stats(ctx context.Context, callerID string) (*store.RequestStats, error) {
	return s.store.GetRequestStats(ctx, callerID)
}

func (s *Service) auditRequest(ctx context.Context, event audit.EventType, actorID string, req *store.EditorRequest, opErr error) {
	if s.audit == nil {
		return
	}
	status := audit.StatusSuccess
	message := ""
	if opErr != nil {
		status = audit.StatusFailure
		message = opErr.Error()
		var rl *RateLimitedError
		if errors.As(opErr, &rl) {
			status = audit.StatusDenied
		}
	}
	_ = s.audit.Log(ctx, &audit.Event{
		Type:         event,
		Status:       status,
		ActorID:      actorID,
		ResourceType: audit.ResourceRequest,
		ResourceID:   req.ID,
		ProfileID:    req.ProfileID,
		Message:      message,
		Timestamp:    s.now(),
	})
}

func (s *Service) auditDenied(ctx context.Context, actorID, profileID, requestID string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Log(ctx, &audit.Event{
		Type:         audit.EventAccessDenied,
		Status:       audit.StatusDenied,
		ActorID:      actorID,
		ResourceType: audit.ResourceRequest,
		ResourceID:   requestID,
		ProfileID:    profileID,
		Timestamp:    s.now(),
	})
}
