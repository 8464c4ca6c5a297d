// Package redisstore implements the document-store port on Redis. Documents
// are JSON values under Firestore-style key paths:
//
//	universities/{id}
//	profiles/{id}
//	profiles/{id}/editorRequests/{id}
//	users/{id}/editorRequestStats
//
// Secondary indexes (sets and a sorted set of pending requests keyed by
// submission time) back the list operations. Multi-document mutations run
// under WATCH with optimistic retry, giving the same atomicity the SQL
// adapter gets from row locks.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/storiats/memoryvista/pkg/store"
)

const (
	// txRetries bounds the optimistic retry loop under contention.
	txRetries = 16
)

// Store is the Redis adapter.
type Store struct {
	client *redis.Client
}

// New creates a Store over an existing client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Open connects to the given Redis URL and verifies the connection.
func Open(ctx context.Context, url, password string, db int) (*Store, error) {
	opts := &redis.Options{Addr: url, Password: password, DB: db}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis not reachable: %w", err)
	}
	return New(client), nil
}

func universityKey(id string) string { return "universities/" + id }

func profileKey(id string) string { return "profiles/" + id }

func requestKey(profileID, requestID string) string {
	return "profiles/" + profileID + "/editorRequests/" + requestID
}

func statsKey(userID string) string { return "users/" + userID + "/editorRequestStats" }

func profileRequestsIdx(profileID string) string { return "idx:profiles/" + profileID + "/requests" }

func userRequestsIdx(userID string) string { return "idx:users/" + userID + "/requests" }

func universityProfilesIdx(universityID string) string {
	return "idx:universities/" + universityID + "/profiles"
}

// pendingIdx is a sorted set of "profileID|requestID" scored by submission
// time, used by the stale-request sweep.
const pendingIdx = "idx:requests/pending"

func (s *Store) GetUniversity(ctx context.Context, id string) (*store.University, error) {
	u := &store.University{}
	if err := s.getJSON(ctx, universityKey(id), u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) CreateUniversity(ctx context.Context, u *store.University) error {
	return s.setJSON(ctx, universityKey(u.ID), u)
}

func (s *Store) AddUniversityAdmin(ctx context.Context, universityID, userID string) error {
	return s.mutateUniversity(ctx, universityID, func(u *store.University) {
		if !u.IsAdmin(userID) {
			u.AdminIDs = append(u.AdminIDs, userID)
			u.UpdatedAt = time.Now()
		}
	})
}

func (s *Store) RemoveUniversityAdmin(ctx context.Context, universityID, userID string) error {
	return s.mutateUniversity(ctx, universityID, func(u *store.University) {
		kept := u.AdminIDs[:0]
		for _, id := range u.AdminIDs {
			if id != userID {
				kept = append(kept, id)
			}
		}
		u.AdminIDs = kept
		u.UpdatedAt = time.Now()
	})
}

func (s *Store) mutateUniversity(ctx context.Context, id string, mutate func(*store.University)) error {
	key := universityKey(id)
	fn := func(tx *redis.Tx) error {
		u := &store.University{}
		if err := getJSONTx(ctx, tx, key, u); err != nil {
			return err
		}
		mutate(u)
		raw, err := json.Marshal(u)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}
	return s.watch(ctx, "mutate university", fn, key)
}

func (s *Store) GetProfile(ctx context.Context, id string) (*store.Profile, error) {
	p := &store.Profile{}
	if err := s.getJSON(ctx, profileKey(id), p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) CreateProfile(ctx context.Context, p *store.Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, profileKey(p.ID), raw, 0)
		if p.UniversityID != "" {
			pipe.SAdd(ctx, universityProfilesIdx(p.UniversityID), p.ID)
		}
		return nil
	})
	if err != nil {
		return &store.UnavailableError{Op: "create profile", Err: err}
	}
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, id string, upd store.ProfileUpdate) (*store.Profile, error) {
	var updated *store.Profile
	err := s.mutateProfile(ctx, id, func(p *store.Profile) {
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
		updated = &cp
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) SetProfileStatus(ctx context.Context, id string, status store.ProfileStatus) error {
	return s.mutateProfile(ctx, id, func(p *store.Profile) {
		p.Status = status
		p.UpdatedAt = time.Now()
	})
}

func (s *Store) RemoveCollaborator(ctx context.Context, profileID, userID string) error {
	return s.mutateProfile(ctx, profileID, func(p *store.Profile) {
		kept := p.CollaboratorIDs[:0]
		for _, id := range p.CollaboratorIDs {
			if id != userID {
				kept = append(kept, id)
			}
		}
		p.CollaboratorIDs = kept
		p.UpdatedAt = time.Now()
	})
}

func (s *Store) mutateProfile(ctx context.Context, id string, mutate func(*store.Profile)) error {
	key := profileKey(id)
	fn := func(tx *redis.Tx) error {
		p := &store.Profile{}
		if err := getJSONTx(ctx, tx, key, p); err != nil {
			return err
		}
		mutate(p)
		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}
	return s.watch(ctx, "mutate profile", fn, key)
}

func (s *Store) ListProfilesByUniversity(ctx context.Context, universityID string) ([]*store.Profile, error) {
	ids, err := s.client.SMembers(ctx, universityProfilesIdx(universityID)).Result()
	if err != nil {
		return nil, &store.UnavailableError{Op: "list profiles", Err: err}
	}
	var out []*store.Profile
	for _, id := range ids {
		p := &store.Profile{}
		err := s.getJSON(ctx, profileKey(id), p)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetRequest(ctx context.Context, profileID, requestID string) (*store.EditorRequest, error) {
	req := &store.EditorRequest{}
	if err := s.getJSON(ctx, requestKey(profileID, requestID), req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Store) GetRequestStats(ctx context.Context, userID string) (*store.RequestStats, error) {
	stats := &store.RequestStats{UserID: userID}
	err := s.getJSON(ctx, statsKey(userID), stats)
	if errors.Is(err, store.ErrNotFound) {
		return &store.RequestStats{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) ListRequestsByProfile(ctx context.Context, profileID string) ([]*store.EditorRequest, error) {
	ids, err := s.client.SMembers(ctx, profileRequestsIdx(profileID)).Result()
	if err != nil {
		return nil, &store.UnavailableError{Op: "list requests", Err: err}
	}
	var out []*store.EditorRequest
	for _, id := range ids {
		req, err := s.GetRequest(ctx, profileID, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	sortRequests(out)
	return out, nil
}

func (s *Store) ListRequestsByUser(ctx context.Context, userID string) ([]*store.EditorRequest, error) {
	members, err := s.client.SMembers(ctx, userRequestsIdx(userID)).Result()
	if err != nil {
		return nil, &store.UnavailableError{Op: "list requests", Err: err}
	}
	var out []*store.EditorRequest
	for _, member := range members {
		profileID, requestID, ok := splitMember(member)
		if !ok {
			continue
		}
		req, err := s.GetRequest(ctx, profileID, requestID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	sortRequests(out)
	return out, nil
}

func (s *Store) ListStalePending(ctx context.Context, cutoff time.Time) ([]*store.EditorRequest, error) {
	members, err := s.client.ZRangeByScore(ctx, pendingIdx, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%d", cutoff.Unix()),
	}).Result()
	if err != nil {
		return nil, &store.UnavailableError{Op: "list stale requests", Err: err}
	}
	var out []*store.EditorRequest
	for _, member := range members {
		profileID, requestID, ok := splitMember(member)
		if !ok {
			continue
		}
		req, err := s.GetRequest(ctx, profileID, requestID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if req.Status == store.RequestPending {
			out = append(out, req)
		}
	}
	return out, nil
}

// Update runs fn against a transactional view. Reads watch their keys;
// writes are buffered and committed in one MULTI/EXEC. On a WATCH conflict
// the whole closure is retried.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	for attempt := 0; attempt < txRetries; attempt++ {
		var appErr error
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			t := &redisTx{ctx: ctx, tx: rtx}
			if err := fn(t); err != nil {
				appErr = err
				return nil // aborts without EXEC
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, write := range t.writes {
					write(pipe)
				}
				return nil
			})
			return err
		})
		if appErr != nil {
			return appErr
		}
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return &store.UnavailableError{Op: "transaction", Err: err}
		}
		return nil
	}
	return &store.UnavailableError{Op: "transaction", Err: fmt.Errorf("too many conflicts after %d attempts", txRetries)}
}

// watch runs fn under WATCH on the given keys, retrying on conflicts.
// Domain errors from fn pass through untouched.
func (s *Store) watch(ctx context.Context, op string, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < txRetries; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if err == nil {
			return nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		if errors.Is(err, store.ErrNotFound) || store.IsUnavailable(err) {
			return err
		}
		return &store.UnavailableError{Op: op, Err: err}
	}
	return &store.UnavailableError{Op: op, Err: fmt.Errorf("too many conflicts after %d attempts", txRetries)}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) getJSON(ctx context.Context, key string, dest interface{}) error {
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return store.ErrNotFound
	}
	if err != nil {
		return &store.UnavailableError{Op: "get " + key, Err: err}
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("corrupt document at %s: %w", key, err)
	}
	return nil
}

func (s *Store) setJSON(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return &store.UnavailableError{Op: "set " + key, Err: err}
	}
	return nil
}

func getJSONTx(ctx context.Context, tx *redis.Tx, key string, dest interface{}) error {
	if err := tx.Watch(ctx, key).Err(); err != nil {
		return &store.UnavailableError{Op: "watch " + key, Err: err}
	}
	raw, err := tx.Get(ctx, key).Result()
	if err == redis.Nil {
		return store.ErrNotFound
	}
	if err != nil {
		return &store.UnavailableError{Op: "get " + key, Err: err}
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("corrupt document at %s: %w", key, err)
	}
	return nil
}

func member(profileID, requestID string) string {
	return profileID + "|" + requestID
}

func splitMember(m string) (profileID, requestID string, ok bool) {
	i := strings.IndexByte(m, '|')
	if i < 0 {
		return "", "", false
	}
	return m[:i], m[i+1:], true
}

func sortRequests(reqs []*store.EditorRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].RequestedAt.Before(reqs[j].RequestedAt)
	})
}
