package proxy

import (
	"context"
	"docuvault/internal/common"
	"docuvault/internal/dto"
	"docuvault/internal/shard"
	"docuvault/utils"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// NodeClient is the proxy's view of one storage node.
type NodeClient interface {
	Stage(ctx context.Context, req *dto.StageRequest) (string, error)
	Commit(ctx context.Context, objectID string, documentID uint64) error
	Fetch(ctx context.Context, objectID string) (*dto.Object, error)
	Discard(ctx context.Context, objectIDs []string) error
}

// ClientFactory builds the client for an endpoint. Clients are cached by
// address, so swapping in a topology with the same addresses reuses them.
type ClientFactory func(ep shard.Endpoint) NodeClient

type Config struct {
	CallTimeout    time.Duration
	DiscardTimeout time.Duration
}

// Proxy forwards object operations to the shard that owns each id. It
// keeps no per-object state.
type Proxy struct {
	topology *shard.Holder
	factory  ClientFactory
	cfg      Config
	log      logrus.FieldLogger

	clients sync.Map // addr -> NodeClient
}

func New(topology *shard.Holder, factory ClientFactory, cfg Config, log logrus.FieldLogger) *Proxy {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.DiscardTimeout <= 0 {
		cfg.DiscardTimeout = 5 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Proxy{topology: topology, factory: factory, cfg: cfg, log: log}
}

func (p *Proxy) client(ep shard.Endpoint) NodeClient {
	if c, ok := p.clients.Load(ep.Addr); ok {
		return c.(NodeClient)
	}
	c, _ := p.clients.LoadOrStore(ep.Addr, p.factory(ep))
	return c.(NodeClient)
}

func (p *Proxy) owner(objectID string) (shard.Endpoint, NodeClient) {
	topo := p.topology.Load()
	ep := topo.Endpoint(topo.Owner(objectID))
	return ep, p.client(ep)
}

// StageUpload assigns a fresh object id, forwards the bytes to its owner
// and returns once the node has accepted the object.
func (p *Proxy) StageUpload(ctx context.Context, req *dto.StageRequest) (string, error) {
	if req == nil {
		return "", fmt.Errorf("%w: empty request", common.ErrInvalidArgument)
	}
	forward := *req
	forward.ObjectID = utils.GetToken()

	ep, c := p.owner(forward.ObjectID)
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	objectID, err := c.Stage(ctx, &forward)
	if err != nil {
		return "", fmt.Errorf("stage on %s: %w", ep.Name, err)
	}
	return objectID, nil
}

func (p *Proxy) Commit(ctx context.Context, objectID string, documentID uint64) error {
	ep, c := p.owner(objectID)
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	if err := c.Commit(ctx, objectID, documentID); err != nil {
		return fmt.Errorf("commit on %s: %w", ep.Name, err)
	}
	return nil
}

func (p *Proxy) Fetch(ctx context.Context, objectID string) (*dto.Object, error) {
	ep, c := p.owner(objectID)
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	obj, err := c.Fetch(ctx, objectID)
	if err != nil {
		return nil, fmt.Errorf("fetch on %s: %w", ep.Name, err)
	}
	return obj, nil
}

// Discard sends one batched call per owning shard, all in parallel, each
// bounded by the discard timeout. It returns after every call was
// attempted; failures are only logged.
func (p *Proxy) Discard(ctx context.Context, objectIDs []string) {
	topo := p.topology.Load()
	groups := shard.Partition(objectIDs, topo.Len())
	if len(groups) == 0 {
		return
	}

	var wg sync.WaitGroup
	for idx, ids := range groups {
		ep := topo.Endpoint(idx)
		c := p.client(ep)
		wg.Add(1)
		go func(ep shard.Endpoint, c NodeClient, ids []string) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, p.cfg.DiscardTimeout)
			defer cancel()
			if err := c.Discard(callCtx, ids); err != nil {
				p.log.WithFields(logrus.Fields{
					"shard": ep.Index,
					"addr":  ep.Addr,
					"count": len(ids),
				}).WithError(err).Warn("discard failed")
			}
		}(ep, c, ids)
	}
	wg.Wait()
}

// Topology returns the topology currently used for routing.
func (p *Proxy) Topology() *shard.Topology {
	return p.topology.Load()
}

// SwapTopology replaces the routing table; the shard count must not change.
func (p *Proxy) SwapTopology(next *shard.Topology) error {
	if err := p.topology.Swap(next); err != nil {
		return err
	}
	p.log.WithField("version", next.Version()).Info("topology swapped")
	return nil
}
