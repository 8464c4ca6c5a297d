// Package memstore provides an in-memory Store used in tests and local
// development. It honors the same transaction and error contract as the
// hosted backends, guarded by a single mutex.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/storiats/memoryvista/pkg/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu           sync.Mutex
	universities map[string]*store.University
	profiles     map[string]*store.Profile
	requests     map[string]map[string]*store.EditorRequest // profileID -> requestID
	stats        map[string]*store.RequestStats

	// FailNext, when set, makes the next operation return an
	// UnavailableError wrapping it. Used to exercise failure paths.
	FailNext error
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		universities: make(map[string]*store.University),
		profiles:     make(map[string]*store.Profile),
		requests:     make(map[string]map[string]*store.EditorRequest),
		stats:        make(map[string]*store.RequestStats),
	}
}

func (s *Store) failure(op string) error {
	if s.FailNext == nil {
		return nil
	}
	err := s.FailNext
	s.FailNext = nil
	return &store.UnavailableError{Op: op, Err: err}
}

func (s *Store) GetUniversity(ctx context.Context, id string) (*store.University, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("get university"); err != nil {
		return nil, err
	}
	u, ok := s.universities[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	cp.AdminIDs = append([]string(nil), u.AdminIDs...)
	return &cp, nil
}

func (s *Store) CreateUniversity(ctx context.Context, u *store.University) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("create university"); err != nil {
		return err
	}
	cp := *u
	cp.AdminIDs = append([]string(nil), u.AdminIDs...)
	s.universities[u.ID] = &cp
	return nil
}

func (s *Store) AddUniversityAdmin(ctx context.Context, universityID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.universities[universityID]
	if !ok {
		return store.ErrNotFound
	}
	if !u.IsAdmin(userID) {
		u.AdminIDs = append(u.AdminIDs, userID)
		u.UpdatedAt = time.Now()
	}
	return nil
}

func (s *Store) RemoveUniversityAdmin(ctx context.Context, universityID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.universities[universityID]
	if !ok {
		return store.ErrNotFound
	}
	kept := u.AdminIDs[:0]
	for _, id := range u.AdminIDs {
		if id != userID {
			kept = append(kept, id)
		}
	}
	u.AdminIDs = kept
	u.UpdatedAt = time.Now()
	return nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (*store.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("get profile"); err != nil {
		return nil, err
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	cp.CollaboratorIDs = append([]string(nil), p.CollaboratorIDs...)
	return &cp, nil
}

func (s *Store) CreateProfile(ctx context.Context, p *store.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("create profile"); err != nil {
		return err
	}
	cp := *p
	cp.CollaboratorIDs = append([]string(nil), p.CollaboratorIDs...)
	s.profiles[p.ID] = &cp
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, id string, upd store.ProfileUpdate) (*store.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if upd.FullName != nil {
		p.FullName = *upd.FullName
	}
	if upd.Headline != nil {
		p.Headline = *upd.Headline
	}
	if upd.Biography != nil {
		p.Biography = *upd.Biography
	}
	p.UpdatedAt = time.Now()
	cp := *p
	cp.CollaboratorIDs = append([]string(nil), p.CollaboratorIDs...)
	return &cp, nil
}

func (s *Store) SetProfileStatus(ctx context.Context, id string, status store.ProfileStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	return nil
}

func (s *Store) RemoveCollaborator(ctx context.Context, profileID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileID]
	if !ok {
		return store.ErrNotFound
	}
	kept := p.CollaboratorIDs[:0]
	for _, id := range p.CollaboratorIDs {
		if id != userID {
			kept = append(kept, id)
		}
	}
	p.CollaboratorIDs = kept
	p.UpdatedAt = time.Now()
	return nil
}

func (s *Store) ListProfilesByUniversity(ctx context.Context, universityID string) ([]*store.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Profile
	for _, p := range s.profiles {
		if p.UniversityID == universityID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetRequest(ctx context.Context, profileID, requestID string) (*store.EditorRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[profileID][requestID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *Store) GetRequestStats(ctx context.Context, userID string) (*store.RequestStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("get request stats"); err != nil {
		return nil, err
	}
	st, ok := s.stats[userID]
	if !ok {
		return &store.RequestStats{UserID: userID}, nil
	}
	cp := *st
	return &cp, nil
}

func (s *Store) ListRequestsByProfile(ctx context.Context, profileID string) ([]*store.EditorRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.EditorRequest
	for _, req := range s.requests[profileID] {
		cp := *req
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

func (s *Store) ListRequestsByUser(ctx context.Context, userID string) ([]*store.EditorRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.EditorRequest
	for _, byID := range s.requests {
		for _, req := range byID {
			if req.UserID == userID {
				cp := *req
				out = append(out, &cp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

func (s *Store) ListStalePending(ctx context.Context, cutoff time.Time) ([]*store.EditorRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.EditorRequest
	for _, byID := range s.requests {
		for _, req := range byID {
			if req.Status == store.RequestPending && req.RequestedAt.Before(cutoff) {
				cp := *req
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

// Update runs fn under the store mutex. Writes are staged on the transaction
// and applied only when fn returns nil, so an aborted closure leaves no
// partial state behind.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("transaction"); err != nil {
		return err
	}
	tx := newMemTx(s)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// memTx stages writes in its own maps; reads consult the staged copy first
// so the closure sees its own writes.
type memTx struct {
	s        *Store
	stats    map[string]*store.RequestStats
	requests map[string]*store.EditorRequest // profileID + "/" + requestID
	profiles map[string]*store.Profile
}

func newMemTx(s *Store) *memTx {
	return &memTx{
		s:        s,
		stats:    make(map[string]*store.RequestStats),
		requests: make(map[string]*store.EditorRequest),
		profiles: make(map[string]*store.Profile),
	}
}

func reqKey(profileID, requestID string) string { return profileID + "/" + requestID }

func (t *memTx) commit() {
	for id, st := range t.stats {
		t.s.stats[id] = st
	}
	for _, req := range t.requests {
		byID, ok := t.s.requests[req.ProfileID]
		if !ok {
			byID = make(map[string]*store.EditorRequest)
			t.s.requests[req.ProfileID] = byID
		}
		byID[req.ID] = req
	}
	for id, p := range t.profiles {
		t.s.profiles[id] = p
	}
}

func (t *memTx) StatsForUpdate(userID string) (*store.RequestStats, error) {
	if st, ok := t.stats[userID]; ok {
		cp := *st
		return &cp, nil
	}
	if st, ok := t.s.stats[userID]; ok {
		cp := *st
		return &cp, nil
	}
	return &store.RequestStats{UserID: userID}, nil
}

func (t *memTx) PutStats(stats *store.RequestStats) error {
	cp := *stats
	t.stats[stats.UserID] = &cp
	return nil
}

func (t *memTx) PutRequest(req *store.EditorRequest) error {
	cp := *req
	t.requests[reqKey(req.ProfileID, req.ID)] = &cp
	return nil
}

// request returns a mutable copy of the request, staged writes first.
func (t *memTx) request(profileID, requestID string) (*store.EditorRequest, bool) {
	if req, ok := t.requests[reqKey(profileID, requestID)]; ok {
		cp := *req
		return &cp, true
	}
	req, ok := t.s.requests[profileID][requestID]
	if !ok {
		return nil, false
	}
	cp := *req
	return &cp, true
}

func (t *memTx) RequestForUpdate(profileID, requestID string) (*store.EditorRequest, error) {
	req, ok := t.request(profileID, requestID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return req, nil
}

func (t *memTx) SetRequestStatus(profileID, requestID string, status store.RequestStatus, decidedBy string) error {
	req, ok := t.request(profileID, requestID)
	if !ok {
		return store.ErrNotFound
	}
	req.Status = status
	req.DecidedBy = decidedBy
	req.UpdatedAt = time.Now()
	t.requests[reqKey(profileID, requestID)] = req
	return nil
}

func (t *memTx) AddCollaborator(profileID, userID string) error {
	p, ok := t.profiles[profileID]
	if !ok {
		src, found := t.s.profiles[profileID]
		if !found {
			return store.ErrNotFound
		}
		cp := *src
		cp.CollaboratorIDs = append([]string(nil), src.CollaboratorIDs...)
		p = &cp
	}
	if !p.IsCollaborator(userID) {
		p.CollaboratorIDs = append(p.CollaboratorIDs, userID)
		p.UpdatedAt = time.Now()
	}
	t.profiles[profileID] = p
	return nil
}
