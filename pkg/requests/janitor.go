package requests

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/storiats/memoryvista/pkg/audit"
	"github.com/storiats/memoryvista/pkg/store"
)

// Janitor auto-rejects pending requests that were never decided, releasing
// the requester's pending slots so the cap stays meaningful.
type Janitor struct {
	store  store.Store
	audit  audit.Logger
	maxAge time.Duration
	log    *logrus.Entry
	cron   *cron.Cron
	now    func() time.Time
}

// NewJanitor creates a janitor that expires pending requests older than
// maxAge.
func NewJanitor(st store.Store, auditLog audit.Logger, maxAge time.Duration, log *logrus.Logger) *Janitor {
	return &Janitor{
		store:  st,
		audit:  auditLog,
		maxAge: maxAge,
		log:    log.WithField("component", "request-janitor"),
		now:    time.Now,
	}
}

// Start schedules the expiry sweep on the given cron spec (e.g. "@daily").
func (j *Janitor) Start(spec string) error {
	j.cron = cron.New()
	if _, err := j.cron.AddFunc(spec, func() {
		if _, err := j.ExpireStale(context.Background()); err != nil {
			j.log.WithError(err).Error("stale request sweep failed")
		}
	}); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the scheduled sweeps.
func (j *Janitor) Stop() {
	if j.cron != nil {
		j.cron.Stop()
	}
}

// ExpireStale rejects every pending request older than maxAge and returns
// how many were expired. Each request is expired in its own transaction so
// one failure does not abort the sweep.
func (j *Janitor) ExpireStale(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.maxAge)
	stale, err := j.store.ListStalePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	var firstErr error
	for _, req := range stale {
		err := j.store.Update(ctx, func(tx store.Tx) error {
			current, err := tx.RequestForUpdate(req.ProfileID, req.ID)
			if err != nil {
				return err
			}
			if current.Status != store.RequestPending {
				return nil
			}
			if err := tx.SetRequestStatus(req.ProfileID, req.ID, store.RequestRejected, ""); err != nil {
				return err
			}
			stats, err := tx.StatsForUpdate(current.UserID)
			if err != nil {
				return err
			}
			if stats.PendingRequests > 0 {
				stats.PendingRequests--
			}
			return tx.PutStats(stats)
		})
		if err != nil {
			// A request decided between listing and locking is fine.
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		expired++
		if j.audit != nil {
			_ = j.audit.Log(ctx, &audit.Event{
				Type:         audit.EventRequestExpire,
				Status:       audit.StatusSuccess,
				SubjectID:    req.UserID,
				ResourceType: audit.ResourceRequest,
				ResourceID:   req.ID,
				ProfileID:    req.ProfileID,
				Timestamp:    j.now(),
			})
		}
	}

	if expired > 0 {
		j.log.WithField("expired", expired).Info("expired stale editor requests")
	}
	return expired, firstErr
}
