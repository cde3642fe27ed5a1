package dto

type StageResponse struct {
	ObjectID string `json:"object_id"`
}

// Object is a fetched object with its bytes.
type Object struct {
	ObjectID    string `json:"object_id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Data        []byte `json:"data"`
}

// ErrorResponse is the body of every non-2xx reply. Reason is set on 404.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type ShardInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Addr  string `json:"addr"`
}

type TopologyResponse struct {
	Version int64       `json:"version"`
	Shards  []ShardInfo `json:"shards"`
}

type HealthResponse struct {
	Status     string `json:"status"`
	Shard      int    `json:"shard"`
	Workers    int    `json:"workers"`
	QueueDepth int    `json:"queue_depth"`
	Inflight   int    `json:"inflight"`
}
