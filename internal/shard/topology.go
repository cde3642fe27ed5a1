package shard

import (
	"docuvault/config"
	"errors"
	"fmt"
	"sync/atomic"
)

var ErrTopologyResize = errors.New("topology shard count cannot change at runtime")

// Endpoint is one storage node in a topology.
type Endpoint struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Addr  string `json:"addr"`
}

// Topology is an immutable, versioned shard layout.
type Topology struct {
	version   int64
	endpoints []Endpoint
}

// NewTopology validates that endpoints are indexed 0..n-1 in order.
func NewTopology(version int64, endpoints []Endpoint) (*Topology, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("topology needs at least one shard")
	}
	copied := make([]Endpoint, len(endpoints))
	for i, ep := range endpoints {
		if ep.Index != i {
			return nil, fmt.Errorf("shard %d has index %d", i, ep.Index)
		}
		if ep.Addr == "" {
			return nil, fmt.Errorf("shard %d has no address", i)
		}
		copied[i] = ep
	}
	return &Topology{version: version, endpoints: copied}, nil
}

// FromConfig builds a topology from the loaded shard config.
func FromConfig(cfg *config.TopologyConfig) (*Topology, error) {
	if cfg == nil {
		return nil, errors.New("topology config not initialized")
	}
	endpoints := make([]Endpoint, 0, len(cfg.Shards))
	for _, s := range cfg.Shards {
		endpoints = append(endpoints, Endpoint{Index: s.Index, Name: s.Name, Addr: s.Addr})
	}
	return NewTopology(cfg.Version, endpoints)
}

func (t *Topology) Version() int64 { return t.version }

func (t *Topology) Len() int { return len(t.endpoints) }

// Endpoint returns the endpoint for a shard index.
func (t *Topology) Endpoint(idx int) Endpoint { return t.endpoints[idx] }

// Endpoints returns a copy of all endpoints.
func (t *Topology) Endpoints() []Endpoint {
	out := make([]Endpoint, len(t.endpoints))
	copy(out, t.endpoints)
	return out
}

// Owner returns the shard index owning objectID.
func (t *Topology) Owner(objectID string) int {
	return Route(objectID, len(t.endpoints))
}

// Holder publishes the current topology to readers without locking.
type Holder struct {
	current atomic.Pointer[Topology]
}

func NewHolder(t *Topology) *Holder {
	h := &Holder{}
	h.current.Store(t)
	return h
}

func (h *Holder) Load() *Topology {
	return h.current.Load()
}

// Swap installs next if it keeps the shard count and has a newer version.
func (h *Holder) Swap(next *Topology) error {
	for {
		cur := h.current.Load()
		if next.Len() != cur.Len() {
			return fmt.Errorf("%w: %d -> %d", ErrTopologyResize, cur.Len(), next.Len())
		}
		if next.Version() <= cur.Version() {
			return fmt.Errorf("stale topology version %d (current %d)", next.Version(), cur.Version())
		}
		if h.current.CompareAndSwap(cur, next) {
			return nil
		}
	}
}
