package repo

import (
	"context"
	"docuvault/internal/common"
	"docuvault/model"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryObjectRepository keeps records in process memory (DB_DRIVER=memory).
// Records are copied in and out so callers never share state with the map.
type MemoryObjectRepository struct {
	mu      sync.RWMutex
	nextID  uint64
	records map[string]*model.ObjectRecord
}

func NewMemoryObjectRepository() *MemoryObjectRepository {
	return &MemoryObjectRepository{records: make(map[string]*model.ObjectRecord)}
}

func (r *MemoryObjectRepository) Create(_ context.Context, rec *model.ObjectRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ObjectID]; ok {
		return fmt.Errorf("duplicate object_id %s", rec.ObjectID)
	}
	r.nextID++
	now := time.Now()
	rec.ID = r.nextID
	rec.CreatedAt = now
	rec.UpdatedAt = now
	stored := *rec
	r.records[rec.ObjectID] = &stored
	return nil
}

func (r *MemoryObjectRepository) Get(_ context.Context, objectID string) (*model.ObjectRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[objectID]
	if !ok {
		return nil, common.ErrObjectNotFound
	}
	out := *rec
	return &out, nil
}

func (r *MemoryObjectRepository) MarkWritten(_ context.Context, objectID string, location *string, status model.WriteStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[objectID]
	if !ok || rec.WriteStatus != model.WriteStatusPending {
		return false, nil
	}
	if location != nil {
		loc := *location
		rec.Location = &loc
	}
	rec.WriteStatus = status
	rec.UpdatedAt = time.Now()
	return true, nil
}

func (r *MemoryObjectRepository) Fix(_ context.Context, objectID string, documentID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[objectID]
	if !ok || !rec.Live() {
		return common.ErrObjectNotFound
	}
	doc := documentID
	rec.DocumentID = &doc
	rec.Fixed = true
	rec.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryObjectRepository) MarkDeleted(_ context.Context, objectIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range objectIDs {
		if rec, ok := r.records[id]; ok {
			rec.WriteStatus = model.WriteStatusDeleted
			rec.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (r *MemoryObjectRepository) ListUnfixed(_ context.Context, ownerUserID uint64) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := make([]*model.ObjectRecord, 0)
	for _, rec := range r.records {
		if rec.OwnerUserID == ownerUserID && !rec.Fixed {
			matched = append(matched, rec)
		}
	}
	return sortedIDs(matched), nil
}

func (r *MemoryObjectRepository) ClaimUnfixed(_ context.Context, objectIDs []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	claimed := make([]*model.ObjectRecord, 0, len(objectIDs))
	for _, id := range objectIDs {
		rec, ok := r.records[id]
		if !ok || rec.Fixed {
			continue
		}
		rec.WriteStatus = model.WriteStatusDeleted
		rec.UpdatedAt = time.Now()
		claimed = append(claimed, rec)
	}
	return sortedIDs(claimed), nil
}

func (r *MemoryObjectRepository) Purge(_ context.Context, objectIDs []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for _, id := range objectIDs {
		rec, ok := r.records[id]
		if !ok || rec.Fixed {
			continue
		}
		delete(r.records, id)
		removed++
	}
	return removed, nil
}

// Len returns the number of rows, tombstones included.
func (r *MemoryObjectRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func sortedIDs(records []*model.ObjectRecord) []string {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ObjectID)
	}
	return ids
}
