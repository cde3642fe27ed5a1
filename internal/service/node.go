package service

import (
	"context"
	"docuvault/internal/cache"
	"docuvault/internal/common"
	"docuvault/internal/dto"
	"docuvault/internal/pool"
	"docuvault/internal/repo"
	"docuvault/internal/storage"
	"docuvault/model"
	"docuvault/utils"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	LayoutGeneric     = "generic"
	LayoutContentType = "content_type"

	genericNamespace = "files"
	defaultStageTTL  = 10 * time.Minute

	taskStage   = "stage"
	taskDiscard = "discard"
)

var objectIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// NodeConfig holds the per-node knobs.
type NodeConfig struct {
	ShardIndex int
	Layout     string
	StageTTL   time.Duration
	ReadTTL    time.Duration
}

// Node is one storage shard: metadata in repo, bytes in store, reads
// accelerated by the shared object cache.
type Node struct {
	cfg   NodeConfig
	repo  repo.ObjectRepository
	store storage.Store
	cache *cache.ObjectCache
	pool  *pool.Pool
	log   logrus.FieldLogger

	fetches singleflight.Group
}

func NewNode(cfg NodeConfig, r repo.ObjectRepository, s storage.Store, c *cache.ObjectCache, p *pool.Pool, log logrus.FieldLogger) *Node {
	if cfg.StageTTL <= 0 {
		cfg.StageTTL = defaultStageTTL
	}
	if cfg.ReadTTL <= 0 {
		cfg.ReadTTL = cfg.StageTTL
	}
	if cfg.Layout == "" {
		cfg.Layout = LayoutGeneric
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Node{
		cfg:   cfg,
		repo:  r,
		store: s,
		cache: c,
		pool:  p,
		log:   log.WithField("shard", cfg.ShardIndex),
	}
}

// ValidObjectID reports whether id is usable as a routing key and directory name.
func ValidObjectID(id string) bool {
	return objectIDPattern.MatchString(id)
}

func (n *Node) objectDir(objectID, contentType string) string {
	namespace := genericNamespace
	if n.cfg.Layout == LayoutContentType {
		namespace = utils.SanitizeNamespace(contentType)
	}
	return path.Join(namespace, objectID)
}

// Stage inserts a Pending record and hands the byte write to the pool.
// The returned id is valid for Commit right away; Fetch only sees the
// object once the background write has stored it.
func (n *Node) Stage(ctx context.Context, req *dto.StageRequest) (string, error) {
	if req == nil || strings.TrimSpace(req.Name) == "" {
		return "", fmt.Errorf("%w: name required", common.ErrInvalidArgument)
	}
	if req.OwnerUserID == 0 {
		return "", fmt.Errorf("%w: owner_user_id required", common.ErrInvalidArgument)
	}
	size := int64(len(req.Data))
	if req.Size != 0 && req.Size != size {
		return "", fmt.Errorf("%w: size %d does not match %d bytes", common.ErrInvalidArgument, req.Size, size)
	}
	objectID := strings.TrimSpace(req.ObjectID)
	if objectID == "" {
		objectID = utils.GetToken()
	}
	if !ValidObjectID(objectID) {
		return "", fmt.Errorf("%w: object_id %q", common.ErrInvalidArgument, objectID)
	}
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	rec := &model.ObjectRecord{
		ObjectID:    objectID,
		OwnerUserID: req.OwnerUserID,
		Name:        req.Name,
		ContentType: contentType,
		SizeBytes:   size,
		WriteStatus: model.WriteStatusPending,
	}
	if err := n.repo.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("create object record: %w", err)
	}

	data := req.Data
	_, err := n.pool.Submit(taskStage, objectID, func(taskCtx context.Context) error {
		return n.writeStaged(taskCtx, rec, data)
	})
	if err != nil {
		// 后台不再接收任务 记录直接置为失败 避免永远停在 Pending
		if _, markErr := n.repo.MarkWritten(context.WithoutCancel(ctx), objectID, nil, model.WriteStatusFailed); markErr != nil {
			n.log.WithError(markErr).WithField("object_id", objectID).Warn("mark rejected stage failed")
		}
		return "", err
	}
	return objectID, nil
}

func (n *Node) writeStaged(ctx context.Context, rec *model.ObjectRecord, data []byte) error {
	log := n.log.WithField("object_id", rec.ObjectID)
	dir := n.objectDir(rec.ObjectID, rec.ContentType)

	location, err := n.store.Put(ctx, dir, utils.SanitizeFileName(rec.Name), data, storage.PutOptions{
		ContentType: rec.ContentType,
	})
	if err != nil {
		if rmErr := n.store.RemoveAll(context.WithoutCancel(ctx), dir); rmErr != nil {
			log.WithError(rmErr).Debug("cleanup after failed write")
		}
		if _, markErr := n.repo.MarkWritten(context.WithoutCancel(ctx), rec.ObjectID, nil, model.WriteStatusFailed); markErr != nil {
			log.WithError(markErr).Error("record write failure")
		}
		return fmt.Errorf("write object bytes: %w", err)
	}

	updated, err := n.repo.MarkWritten(ctx, rec.ObjectID, &location, model.WriteStatusStored)
	if err != nil {
		_ = n.store.RemoveAll(context.WithoutCancel(ctx), dir)
		return fmt.Errorf("record object location: %w", err)
	}
	if !updated {
		// discarded while the write was in flight
		if err := n.store.RemoveAll(ctx, dir); err != nil {
			log.WithError(err).Warn("remove bytes of discarded object")
		}
		log.Debug("object discarded during staging")
		return nil
	}

	n.cacheLive(ctx, &cache.Entry{
		ObjectID:    rec.ObjectID,
		Name:        rec.Name,
		ContentType: rec.ContentType,
		Size:        rec.SizeBytes,
		Data:        data,
	}, n.cfg.StageTTL)
	log.WithField("location", location).Debug("object stored")
	return nil
}

// cacheLive writes entry and drops it again if the object was tombstoned
// in the meantime, so a racing Discard cannot leave a live cache entry.
func (n *Node) cacheLive(ctx context.Context, entry *cache.Entry, ttl time.Duration) {
	log := n.log.WithField("object_id", entry.ObjectID)
	if err := n.cache.Put(ctx, entry, ttl); err != nil {
		log.WithError(err).Warn("cache object")
		return
	}
	rec, err := n.repo.Get(ctx, entry.ObjectID)
	if err == nil && rec.Live() {
		return
	}
	if err := n.cache.Invalidate(ctx, entry.ObjectID); err != nil {
		log.WithError(err).Warn("invalidate cache of discarded object")
	}
}

// Commit fixes a live object to a document. Fixing twice is fine.
func (n *Node) Commit(ctx context.Context, objectID string, documentID uint64) error {
	if documentID == 0 {
		return fmt.Errorf("%w: document_id required", common.ErrInvalidArgument)
	}
	err := n.repo.Fix(ctx, objectID, documentID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, common.ErrObjectNotFound) {
		return fmt.Errorf("commit object: %w", err)
	}
	reason := common.ReasonMissing
	if rec, getErr := n.repo.Get(ctx, objectID); getErr == nil && !rec.Live() {
		reason = common.ReasonDeleted
	}
	return common.NotFound(objectID, reason)
}

// Fetch serves from cache when possible, otherwise from the record's
// location, seeding the cache for the next reader.
func (n *Node) Fetch(ctx context.Context, objectID string) (*dto.Object, error) {
	entry, hit, err := n.cache.Get(ctx, objectID)
	if err != nil {
		n.log.WithError(err).WithField("object_id", objectID).Warn("cache read failed, falling back to store")
	}
	if hit {
		return entryToObject(entry), nil
	}

	v, err, _ := n.fetches.Do(objectID, func() (interface{}, error) {
		return n.load(ctx, objectID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*dto.Object), nil
}

func (n *Node) load(ctx context.Context, objectID string) (*dto.Object, error) {
	rec, err := n.repo.Get(ctx, objectID)
	if errors.Is(err, common.ErrObjectNotFound) {
		return nil, common.NotFound(objectID, common.ReasonMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("load object record: %w", err)
	}

	switch rec.WriteStatus {
	case model.WriteStatusDeleted:
		return nil, common.NotFound(objectID, common.ReasonDeleted)
	case model.WriteStatusPending:
		return nil, common.NotFound(objectID, common.ReasonPending)
	case model.WriteStatusFailed:
		return nil, common.NotFound(objectID, common.ReasonWriteFailed)
	}
	if rec.Location == nil {
		return nil, common.NotFound(objectID, common.ReasonContentMissing)
	}

	data, err := n.store.Get(ctx, *rec.Location)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, storage.ErrInvalidPath) {
		return nil, &common.ObjectError{ObjectID: objectID, Reason: common.ReasonContentMissing, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("read object bytes: %w", err)
	}

	entry := &cache.Entry{
		ObjectID:    rec.ObjectID,
		Name:        rec.Name,
		ContentType: rec.ContentType,
		Size:        rec.SizeBytes,
		Data:        data,
	}
	n.cacheLive(ctx, entry, n.cfg.ReadTTL)
	return entryToObject(entry), nil
}

func entryToObject(e *cache.Entry) *dto.Object {
	return &dto.Object{
		ObjectID:    e.ObjectID,
		Name:        e.Name,
		ContentType: e.ContentType,
		Size:        e.Size,
		Data:        e.Data,
	}
}

// Discard schedules one independent removal per id and returns at once.
// Failures are logged by the pool and never reported to the caller.
func (n *Node) Discard(objectIDs []string) {
	seen := make(map[string]struct{}, len(objectIDs))
	for _, id := range objectIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if !ValidObjectID(id) {
			n.log.WithField("object_id", id).Debug("skip discard of malformed id")
			continue
		}
		objectID := id
		if _, err := n.pool.Submit(taskDiscard, objectID, func(ctx context.Context) error {
			return n.discardOne(ctx, objectID)
		}); err != nil {
			n.log.WithError(err).WithField("object_id", objectID).Warn("discard not scheduled")
		}
	}
}

func (n *Node) discardOne(ctx context.Context, objectID string) error {
	var errs []error

	contentType := ""
	rec, err := n.repo.Get(ctx, objectID)
	switch {
	case err == nil:
		contentType = rec.ContentType
		if err := n.repo.MarkDeleted(ctx, []string{objectID}); err != nil {
			errs = append(errs, fmt.Errorf("tombstone: %w", err))
		}
	case !errors.Is(err, common.ErrObjectNotFound):
		errs = append(errs, fmt.Errorf("load record: %w", err))
	}

	if err := n.cache.Invalidate(ctx, objectID); err != nil {
		n.log.WithError(err).WithField("object_id", objectID).Debug("cache invalidate on discard")
	}

	if err := n.store.RemoveAll(ctx, n.objectDir(objectID, contentType)); err != nil {
		errs = append(errs, fmt.Errorf("remove bytes: %w", err))
	}
	return errors.Join(errs...)
}

// WaitIdle blocks until no background task is queued or running.
func (n *Node) WaitIdle(ctx context.Context) error {
	return n.pool.Wait(ctx)
}

// Stats reports pool counters for health checks.
func (n *Node) Stats() pool.Stats {
	return n.pool.Stats()
}

// ShardIndex is the shard this node serves.
func (n *Node) ShardIndex() int {
	return n.cfg.ShardIndex
}

// Shutdown stops accepting background work and drains the pool.
func (n *Node) Shutdown(ctx context.Context) error {
	return n.pool.Shutdown(ctx)
}
