package repo

import (
	"context"
	"fmt"

	"docuvault/internal/shard"
)

// ShardedIndex spreads metadata queries over every shard's repository.
// Shard i's repository must own exactly the ids routing to i.
type ShardedIndex struct {
	shards []ObjectRepository
}

func NewShardedIndex(shards []ObjectRepository) *ShardedIndex {
	return &ShardedIndex{shards: shards}
}

// ListUnfixed collects an owner's unfixed object ids from all shards.
func (ix *ShardedIndex) ListUnfixed(ctx context.Context, ownerUserID uint64) ([]string, error) {
	var ids []string
	for i, r := range ix.shards {
		found, err := r.ListUnfixed(ctx, ownerUserID)
		if err != nil {
			return nil, fmt.Errorf("shard %d: %w", i, err)
		}
		ids = append(ids, found...)
	}
	return ids, nil
}

// ClaimUnfixed claims ids on their owning shards.
func (ix *ShardedIndex) ClaimUnfixed(ctx context.Context, objectIDs []string) ([]string, error) {
	var claimed []string
	for idx, group := range shard.Partition(objectIDs, len(ix.shards)) {
		got, err := ix.shards[idx].ClaimUnfixed(ctx, group)
		if err != nil {
			return claimed, fmt.Errorf("shard %d: %w", idx, err)
		}
		claimed = append(claimed, got...)
	}
	return claimed, nil
}

// Purge deletes unfixed rows on their owning shards.
func (ix *ShardedIndex) Purge(ctx context.Context, objectIDs []string) (int64, error) {
	var total int64
	for idx, group := range shard.Partition(objectIDs, len(ix.shards)) {
		n, err := ix.shards[idx].Purge(ctx, group)
		total += n
		if err != nil {
			return total, fmt.Errorf("shard %d: %w", idx, err)
		}
	}
	return total, nil
}
