// Package shard maps object ids to storage nodes.
//
// Routing is a pure function of the object id and the shard count. Changing
// the shard count remaps previously stored objects; nothing here rebalances.
package shard

import "github.com/cespare/xxhash/v2"

// Route returns the shard index in [0, n) owning objectID.
func Route(objectID string, n int) int {
	if n <= 0 {
		return 0
	}
	return int(xxhash.Sum64String(objectID) % uint64(n))
}

// Partition groups ids by owning shard. Order inside a group follows the
// input; duplicate ids are kept once.
func Partition(ids []string, n int) map[int][]string {
	groups := make(map[int][]string)
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		idx := Route(id, n)
		groups[idx] = append(groups[idx], id)
	}
	return groups
}
