package cache

import (
	"context"
	"errors"
	"time"
)

const CacheKeyFileObject = "file:object"

// Entry is the cached form of a fetched object. Presence is authoritative
// for serving a read; absence says nothing about the object.
type Entry struct {
	ObjectID    string `json:"object_id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Data        []byte `json:"data"`
}

// ObjectCache stores object entries keyed by object id.
type ObjectCache struct {
	cache Cache
}

func NewObjectCache(c Cache) *ObjectCache {
	return &ObjectCache{cache: c}
}

func objectKey(objectID string) string {
	return BuildCacheKey(CacheKeyFileObject, objectID)
}

// Get returns the entry and true on a hit. Errors other than a miss are returned.
func (c *ObjectCache) Get(ctx context.Context, objectID string) (*Entry, bool, error) {
	var entry Entry
	err := c.cache.Get(ctx, objectKey(objectID), &entry)
	if errors.Is(err, ErrMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &entry, true, nil
}

// Put writes the entry with ttl; ttl <= 0 means no expiration.
func (c *ObjectCache) Put(ctx context.Context, entry *Entry, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.cache.Set(ctx, objectKey(entry.ObjectID), entry, ttl)
}

// Invalidate removes every entry held for objectID.
func (c *ObjectCache) Invalidate(ctx context.Context, objectID string) error {
	return c.cache.Delete(ctx, objectKey(objectID))
}
