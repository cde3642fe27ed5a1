package proxy

import (
	"context"
	"docuvault/internal/common"
	"docuvault/internal/dto"
	"docuvault/internal/logging"
	"docuvault/internal/shard"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNode struct {
	mu       sync.Mutex
	staged   map[string]*dto.StageRequest
	fixed    map[string]uint64
	discards [][]string

	discardHook func(ctx context.Context) error
	err         error
}

func newFakeNode() *fakeNode {
	return &fakeNode{staged: map[string]*dto.StageRequest{}, fixed: map[string]uint64{}}
}

func (f *fakeNode) Stage(_ context.Context, req *dto.StageRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staged[req.ObjectID] = req
	return req.ObjectID, nil
}

func (f *fakeNode) Commit(_ context.Context, objectID string, documentID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.staged[objectID]; !ok {
		return common.NotFound(objectID, common.ReasonMissing)
	}
	f.fixed[objectID] = documentID
	return nil
}

func (f *fakeNode) Fetch(_ context.Context, objectID string) (*dto.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.staged[objectID]
	if !ok {
		return nil, common.NotFound(objectID, common.ReasonMissing)
	}
	return &dto.Object{ObjectID: objectID, Name: req.Name, ContentType: req.ContentType, Size: int64(len(req.Data)), Data: req.Data}, nil
}

func (f *fakeNode) Discard(ctx context.Context, objectIDs []string) error {
	f.mu.Lock()
	f.discards = append(f.discards, append([]string(nil), objectIDs...))
	f.mu.Unlock()
	if f.discardHook != nil {
		return f.discardHook(ctx)
	}
	return nil
}

func (f *fakeNode) discardCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.discards...)
}

func newTestProxy(t *testing.T, nodes []*fakeNode, cfg Config) *Proxy {
	t.Helper()
	endpoints := make([]shard.Endpoint, len(nodes))
	byAddr := map[string]*fakeNode{}
	for i, n := range nodes {
		addr := fmt.Sprintf("http://node-%d", i)
		endpoints[i] = shard.Endpoint{Index: i, Name: fmt.Sprintf("shard-%d", i), Addr: addr}
		byAddr[addr] = n
	}
	topo, err := shard.NewTopology(1, endpoints)
	require.NoError(t, err)
	return New(shard.NewHolder(topo), func(ep shard.Endpoint) NodeClient {
		return byAddr[ep.Addr]
	}, cfg, logging.Discard())
}

// idsFor returns one id owned by each of n shards.
func idsFor(n int) []string {
	out := make([]string, n)
	found := 0
	for i := 0; found < n; i++ {
		id := fmt.Sprintf("obj-%d", i)
		idx := shard.Route(id, n)
		if out[idx] == "" {
			out[idx] = id
			found++
		}
	}
	return out
}

func TestStageUploadRoutesByGeneratedID(t *testing.T) {
	nodes := []*fakeNode{newFakeNode(), newFakeNode(), newFakeNode()}
	p := newTestProxy(t, nodes, Config{})
	ctx := context.Background()

	ids := map[string]bool{}
	for i := 0; i < 30; i++ {
		id, err := p.StageUpload(ctx, &dto.StageRequest{
			ObjectID: "ignored", Name: "a.txt", OwnerUserID: 42, Data: []byte("0123456789"),
		})
		require.NoError(t, err)
		require.NotEqual(t, "ignored", id)
		ids[id] = true

		owner := nodes[shard.Route(id, 3)]
		_, ok := owner.staged[id]
		assert.True(t, ok, "id %s must land on its owner", id)
	}
	assert.Len(t, ids, 30)
}

func TestCommitAndFetchForwardToOwner(t *testing.T) {
	nodes := []*fakeNode{newFakeNode(), newFakeNode()}
	p := newTestProxy(t, nodes, Config{})
	ctx := context.Background()

	id, err := p.StageUpload(ctx, &dto.StageRequest{Name: "a.txt", ContentType: "text/plain", OwnerUserID: 42, Data: []byte("0123456789")})
	require.NoError(t, err)

	require.NoError(t, p.Commit(ctx, id, 7))
	assert.EqualValues(t, 7, nodes[shard.Route(id, 2)].fixed[id])

	obj, err := p.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", obj.Name)
	assert.Equal(t, []byte("0123456789"), obj.Data)

	err = p.Commit(ctx, "missing", 7)
	require.ErrorIs(t, err, common.ErrObjectNotFound)
	assert.Equal(t, common.ReasonMissing, common.ReasonOf(err))

	_, err = p.Fetch(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrObjectNotFound)
}

func TestStageUploadPropagatesTransportError(t *testing.T) {
	node := newFakeNode()
	node.err = fmt.Errorf("%w: connection refused", common.ErrTransport)
	p := newTestProxy(t, []*fakeNode{node}, Config{})

	_, err := p.StageUpload(context.Background(), &dto.StageRequest{Name: "a", OwnerUserID: 1})
	assert.ErrorIs(t, err, common.ErrTransport)
}

func TestDiscardOneCallPerShardConcurrently(t *testing.T) {
	nodes := []*fakeNode{newFakeNode(), newFakeNode()}
	var arrived sync.WaitGroup
	arrived.Add(2)
	allArrived := make(chan struct{})
	go func() {
		arrived.Wait()
		close(allArrived)
	}()
	var concurrent atomic.Int32
	for _, n := range nodes {
		n.discardHook = func(ctx context.Context) error {
			arrived.Done()
			select {
			case <-allArrived:
				concurrent.Add(1)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	p := newTestProxy(t, nodes, Config{DiscardTimeout: 2 * time.Second})

	ids := idsFor(2)
	p.Discard(context.Background(), []string{ids[0], ids[1], ids[0]})

	for i, n := range nodes {
		calls := n.discardCalls()
		require.Len(t, calls, 1, "shard %d", i)
		assert.Equal(t, []string{ids[i]}, calls[0])
	}
	assert.EqualValues(t, 2, concurrent.Load(), "both shard calls must be in flight together")
}

func TestDiscardTimeoutDoesNotStallOtherShards(t *testing.T) {
	nodes := []*fakeNode{newFakeNode(), newFakeNode()}
	nodes[0].discardHook = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	nodes[1].discardHook = func(context.Context) error { return errors.New("boom") }
	p := newTestProxy(t, nodes, Config{DiscardTimeout: 50 * time.Millisecond})

	ids := idsFor(2)
	start := time.Now()
	p.Discard(context.Background(), ids)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, nodes[0].discardCalls(), 1)
	assert.Len(t, nodes[1].discardCalls(), 1)
}

func TestDiscardEmptyMakesNoCalls(t *testing.T) {
	nodes := []*fakeNode{newFakeNode(), newFakeNode()}
	p := newTestProxy(t, nodes, Config{})
	p.Discard(context.Background(), nil)
	assert.Empty(t, nodes[0].discardCalls())
	assert.Empty(t, nodes[1].discardCalls())
}

func TestSwapTopology(t *testing.T) {
	nodes := []*fakeNode{newFakeNode(), newFakeNode()}
	p := newTestProxy(t, nodes, Config{})

	next, err := shard.NewTopology(2, []shard.Endpoint{
		{Index: 0, Name: "shard-0", Addr: "http://node-1"},
		{Index: 1, Name: "shard-1", Addr: "http://node-0"},
	})
	require.NoError(t, err)
	require.NoError(t, p.SwapTopology(next))
	assert.EqualValues(t, 2, p.Topology().Version())

	ids := idsFor(2)
	p.Discard(context.Background(), []string{ids[0]})
	assert.Len(t, nodes[1].discardCalls(), 1, "shard 0 now points at node-1")

	resized, err := shard.NewTopology(3, []shard.Endpoint{
		{Index: 0, Addr: "http://node-0"}, {Index: 1, Addr: "http://node-1"}, {Index: 2, Addr: "http://node-2"},
	})
	require.NoError(t, err)
	assert.ErrorIs(t, p.SwapTopology(resized), shard.ErrTopologyResize)
}
