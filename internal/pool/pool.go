package pool

import (
	"context"
	"docuvault/internal/common"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Config sizes the pool. Zero values pick defaults.
type Config struct {
	Workers int
	Queue   int
}

// Task is one unit of background work. ctx is cancelled when the pool
// gives up on draining during Shutdown.
type Task func(ctx context.Context) error

// Handle tracks a submitted task until it finishes.
type Handle struct {
	ID        uint64
	Kind      string
	Key       string
	Submitted time.Time

	done chan struct{}
	err  error
}

// Done is closed once the task has finished or was dropped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err reports the task result. Only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

type job struct {
	handle *Handle
	run    Task
}

// Stats is a point-in-time view used by health checks.
type Stats struct {
	Workers    int  `json:"workers"`
	QueueDepth int  `json:"queue_depth"`
	QueueCap   int  `json:"queue_cap"`
	Inflight   int  `json:"inflight"`
	Closed     bool `json:"closed"`
}

// Pool is a fixed set of workers draining a bounded queue. Every submitted
// task is registered until it completes so shutdown can wait for it.
type Pool struct {
	cfg   Config
	queue chan job
	log   logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	closed  bool
	handles map[uint64]*Handle
	nextID  atomic.Uint64

	senders sync.WaitGroup
	workers sync.WaitGroup
}

// New starts the workers.
func New(cfg Config, log logrus.FieldLogger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU() * 2
	}
	if cfg.Queue < 1 {
		cfg.Queue = 256
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:     cfg,
		queue:   make(chan job, cfg.Queue),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		handles: make(map[uint64]*Handle),
	}
	p.workers.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.workers.Done()
	for {
		select {
		case j := <-p.queue:
			p.run(j)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) run(j job) {
	if err := p.ctx.Err(); err != nil {
		p.finish(j.handle, common.ErrShuttingDown)
		return
	}
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panic: %v", r)
			}
		}()
		err = j.run(p.ctx)
	}()
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"task_id": j.handle.ID,
			"kind":    j.handle.Kind,
			"key":     j.handle.Key,
		}).WithError(err).Warn("background task failed")
	}
	p.finish(j.handle, err)
}

func (p *Pool) finish(h *Handle, err error) {
	h.err = err
	p.mu.Lock()
	delete(p.handles, h.ID)
	p.mu.Unlock()
	close(h.done)
}

// Submit queues fn. When the queue is full it blocks until a slot frees
// up, so callers see backpressure instead of dropped work.
func (p *Pool) Submit(kind, key string, fn Task) (*Handle, error) {
	h := &Handle{
		ID:        p.nextID.Add(1),
		Kind:      kind,
		Key:       key,
		Submitted: time.Now(),
		done:      make(chan struct{}),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, common.ErrShuttingDown
	}
	p.handles[h.ID] = h
	p.senders.Add(1)
	p.mu.Unlock()
	defer p.senders.Done()

	select {
	case p.queue <- job{handle: h, run: fn}:
		return h, nil
	case <-p.ctx.Done():
		p.finish(h, common.ErrShuttingDown)
		return nil, common.ErrShuttingDown
	}
}

// Inflight lists queued and running tasks ordered by submission.
func (p *Pool) Inflight() []*Handle {
	p.mu.RLock()
	out := make([]*Handle, 0, len(p.handles))
	for _, h := range p.handles {
		out = append(out, h)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns the current pool counters.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{
		Workers:    p.cfg.Workers,
		QueueDepth: len(p.queue),
		QueueCap:   cap(p.queue),
		Inflight:   len(p.handles),
		Closed:     p.closed,
	}
}

// Wait blocks until no task is registered or ctx ends.
func (p *Pool) Wait(ctx context.Context) error {
	for {
		p.mu.RLock()
		var pending *Handle
		for _, h := range p.handles {
			pending = h
			break
		}
		p.mu.RUnlock()
		if pending == nil {
			return nil
		}
		select {
		case <-pending.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Shutdown stops intake and drains registered tasks until ctx expires.
// Whatever is still running after that sees its context cancelled, and
// queued tasks that never started finish with ErrShuttingDown.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	drainErr := p.Wait(ctx)

	p.cancel()
	p.senders.Wait()
	p.workers.Wait()
	for {
		select {
		case j := <-p.queue:
			p.finish(j.handle, common.ErrShuttingDown)
		default:
			if drainErr != nil {
				p.log.WithField("dropped", len(p.Inflight())).Warn("pool shutdown deadline reached")
			}
			return drainErr
		}
	}
}
