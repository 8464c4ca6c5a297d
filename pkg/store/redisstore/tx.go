package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/storiats/memoryvista/pkg/store"
)

// redisTx implements store.Tx: reads go through the WATCHed connection,
// writes are buffered and committed by Store.Update in one MULTI/EXEC.
type redisTx struct {
	ctx    context.Context
	tx     *redis.Tx
	writes []func(pipe redis.Pipeliner)
}

func (t *redisTx) StatsForUpdate(userID string) (*store.RequestStats, error) {
	stats := &store.RequestStats{UserID: userID}
	err := getJSONTx(t.ctx, t.tx, statsKey(userID), stats)
	if errors.Is(err, store.ErrNotFound) {
		return &store.RequestStats{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (t *redisTx) PutStats(stats *store.RequestStats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	key := statsKey(stats.UserID)
	t.writes = append(t.writes, func(pipe redis.Pipeliner) {
		pipe.Set(t.ctx, key, raw, 0)
	})
	return nil
}

func (t *redisTx) PutRequest(req *store.EditorRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	key := requestKey(req.ProfileID, req.ID)
	profileIdx := profileRequestsIdx(req.ProfileID)
	userIdx := userRequestsIdx(req.UserID)
	m := member(req.ProfileID, req.ID)
	score := float64(req.RequestedAt.Unix())
	pending := req.Status == store.RequestPending
	t.writes = append(t.writes, func(pipe redis.Pipeliner) {
		pipe.Set(t.ctx, key, raw, 0)
		pipe.SAdd(t.ctx, profileIdx, req.ID)
		pipe.SAdd(t.ctx, userIdx, m)
		if pending {
			pipe.ZAdd(t.ctx, pendingIdx, &redis.Z{Score: score, Member: m})
		}
	})
	return nil
}

func (t *redisTx) RequestForUpdate(profileID, requestID string) (*store.EditorRequest, error) {
	req := &store.EditorRequest{}
	if err := getJSONTx(t.ctx, t.tx, requestKey(profileID, requestID), req); err != nil {
		return nil, err
	}
	return req, nil
}

func (t *redisTx) SetRequestStatus(profileID, requestID string, status store.RequestStatus, decidedBy string) error {
	req, err := t.RequestForUpdate(profileID, requestID)
	if err != nil {
		return err
	}
	req.Status = status
	req.DecidedBy = decidedBy
	req.UpdatedAt = time.Now()
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	key := requestKey(profileID, requestID)
	m := member(profileID, requestID)
	t.writes = append(t.writes, func(pipe redis.Pipeliner) {
		pipe.Set(t.ctx, key, raw, 0)
		if status != store.RequestPending {
			pipe.ZRem(t.ctx, pendingIdx, m)
		}
	})
	return nil
}

func (t *redisTx) AddCollaborator(profileID, userID string) error {
	p := &store.Profile{}
	if err := getJSONTx(t.ctx, t.tx, profileKey(profileID), p); err != nil {
		return err
	}
	if p.IsCollaborator(userID) {
		return nil
	}
	p.CollaboratorIDs = append(p.CollaboratorIDs, userID)
	p.UpdatedAt = time.Now()
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	key := profileKey(profileID)
	t.writes = append(t.writes, func(pipe redis.Pipeliner) {
		pipe.Set(t.ctx, key, raw, 0)
	})
	return nil
}
