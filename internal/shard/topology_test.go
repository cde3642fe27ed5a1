package shard

import (
	"docuvault/config"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoShards(t *testing.T, version int64) *Topology {
	t.Helper()
	topo, err := NewTopology(version, []Endpoint{
		{Index: 0, Name: "shard-0", Addr: "http://a:8081"},
		{Index: 1, Name: "shard-1", Addr: "http://b:8081"},
	})
	require.NoError(t, err)
	return topo
}

func TestNewTopologyValidates(t *testing.T) {
	_, err := NewTopology(1, nil)
	assert.Error(t, err)

	_, err = NewTopology(1, []Endpoint{{Index: 1, Addr: "http://a"}})
	assert.Error(t, err)

	_, err = NewTopology(1, []Endpoint{{Index: 0}})
	assert.Error(t, err)
}

func TestTopologyEndpointsAreCopies(t *testing.T) {
	topo := twoShards(t, 1)

	eps := topo.Endpoints()
	eps[0].Addr = "mutated"

	assert.Equal(t, "http://a:8081", topo.Endpoint(0).Addr)
}

func TestTopologyOwnerMatchesRoute(t *testing.T) {
	topo := twoShards(t, 1)

	for _, id := range []string{"x", "y", "z", "0b6c"} {
		assert.Equal(t, Route(id, 2), topo.Owner(id))
	}
}

func TestFromConfig(t *testing.T) {
	topo, err := FromConfig(&config.TopologyConfig{
		Version: 3,
		Shards:  []config.ShardConfig{{Index: 0, Name: "n0", Addr: "http://n0"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), topo.Version())
	assert.Equal(t, 1, topo.Len())

	_, err = FromConfig(nil)
	assert.Error(t, err)
}

func TestHolderSwap(t *testing.T) {
	holder := NewHolder(twoShards(t, 1))

	require.NoError(t, holder.Swap(twoShards(t, 2)))
	assert.Equal(t, int64(2), holder.Load().Version())

	assert.Error(t, holder.Swap(twoShards(t, 2)), "same version must be rejected")

	three, err := NewTopology(5, []Endpoint{
		{Index: 0, Addr: "http://a"},
		{Index: 1, Addr: "http://b"},
		{Index: 2, Addr: "http://c"},
	})
	require.NoError(t, err)
	assert.ErrorIs(t, holder.Swap(three), ErrTopologyResize)
	assert.Equal(t, int64(2), holder.Load().Version())
}
