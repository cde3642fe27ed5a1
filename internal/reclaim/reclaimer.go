package reclaim

import (
	"context"
	"docuvault/internal/repo"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var ErrReclaimBusy = errors.New("reclaim already running for owner")

// Index is the cross-shard metadata view the reclaimer works on.
type Index interface {
	ListUnfixed(ctx context.Context, ownerUserID uint64) ([]string, error)
	ClaimUnfixed(ctx context.Context, objectIDs []string) ([]string, error)
	Purge(ctx context.Context, objectIDs []string) (int64, error)
}

// Discarder removes object bytes, normally through the routing proxy.
type Discarder interface {
	Discard(ctx context.Context, objectIDs []string) error
}

type Lock interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// LockFactory returns the per-owner lock.
type LockFactory func(ownerUserID uint64) Lock

func LockKey(ownerUserID uint64) string {
	return fmt.Sprintf("lock:reclaim:%d", ownerUserID)
}

// RedisLocks builds per-owner Redis locks.
func RedisLocks(rdb redis.Cmdable, ttl time.Duration) LockFactory {
	return func(ownerUserID uint64) Lock {
		return repo.NewRedisLock(rdb, LockKey(ownerUserID), ttl)
	}
}

type Result struct {
	Listed  int   `json:"listed"`
	Claimed int   `json:"claimed"`
	Purged  int64 `json:"purged"`
}

// Reclaimer garbage collects objects an owner staged but never committed.
type Reclaimer struct {
	index     Index
	discarder Discarder
	locks     LockFactory
	log       logrus.FieldLogger
}

func New(index Index, discarder Discarder, locks LockFactory, log logrus.FieldLogger) *Reclaimer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reclaimer{index: index, discarder: discarder, locks: locks, log: log}
}

// Reclaim discards and deletes every unfixed object of ownerUserID.
// Rows are claimed (tombstoned) before the discard, so a Commit racing the
// sweep either fixes the row first and keeps it, or fails with not found.
// When the discard call fails the claimed rows are kept for the next run.
func (r *Reclaimer) Reclaim(ctx context.Context, ownerUserID uint64) (Result, error) {
	var res Result
	log := r.log.WithField("owner_user_id", ownerUserID)

	if r.locks != nil {
		lock := r.locks(ownerUserID)
		if err := lock.Lock(ctx); err != nil {
			if errors.Is(err, repo.ErrLockBusy) {
				return res, ErrReclaimBusy
			}
			return res, fmt.Errorf("acquire reclaim lock: %w", err)
		}
		defer func() {
			if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				log.WithError(err).Warn("release reclaim lock")
			}
		}()
	}

	ids, err := r.index.ListUnfixed(ctx, ownerUserID)
	if err != nil {
		return res, fmt.Errorf("list unfixed objects: %w", err)
	}
	res.Listed = len(ids)
	if len(ids) == 0 {
		return res, nil
	}

	claimed, claimErr := r.index.ClaimUnfixed(ctx, ids)
	res.Claimed = len(claimed)
	if claimErr != nil {
		claimErr = fmt.Errorf("claim unfixed objects: %w", claimErr)
	}
	if len(claimed) == 0 {
		return res, claimErr
	}

	if err := r.discarder.Discard(ctx, claimed); err != nil {
		return res, errors.Join(claimErr, fmt.Errorf("discard objects: %w", err))
	}

	purged, err := r.index.Purge(ctx, claimed)
	res.Purged = purged
	if err != nil {
		return res, errors.Join(claimErr, fmt.Errorf("purge object records: %w", err))
	}

	log.WithFields(logrus.Fields{
		"listed":  res.Listed,
		"claimed": res.Claimed,
		"purged":  res.Purged,
	}).Info("reclaimed unfixed objects")
	return res, claimErr
}
