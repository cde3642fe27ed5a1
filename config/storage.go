package config

import (
	"fmt"
	"sync"
)

// TopologyConfig holds the shard layout shared by the proxy and the reclamation worker.
type TopologyConfig struct {
	Version int64         `json:"version"`
	Shards  []ShardConfig `json:"shards"` // index i owns route(id, len(Shards)) == i
}

// ShardConfig describes one storage node.
type ShardConfig struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Addr  string `json:"addr"` // base URL of the node, e.g. http://node-1:8081
}

var TopologyConfigInstance *TopologyConfig
var topologyConfigOnce sync.Once

// LoadTopologyConfig reads SHARD_COUNT and SHARD_<n>_ADDR (1-based).
func LoadTopologyConfig() (*TopologyConfig, error) {
	count := getEnvInt("SHARD_COUNT", 1)
	if count <= 0 {
		return nil, fmt.Errorf("SHARD_COUNT must be positive, got %d", count)
	}
	topology := &TopologyConfig{
		Version: getEnvInt64("TOPOLOGY_VERSION", 1),
		Shards:  make([]ShardConfig, 0, count),
	}
	for i := 1; i <= count; i++ {
		topology.Shards = append(topology.Shards, ShardConfig{
			Index: i - 1,
			Name:  fmt.Sprintf("shard-%d", i-1),
			Addr:  getEnv(fmt.Sprintf("SHARD_%d_ADDR", i), fmt.Sprintf("http://localhost:%d", 8080+i)),
		})
	}
	return topology, nil
}

// InitTopologyConfig initializes the topology config once.
func InitTopologyConfig() error {
	var initErr error
	topologyConfigOnce.Do(func() {
		TopologyConfigInstance, initErr = LoadTopologyConfig()
	})
	return initErr
}
