// Package interceptor implements the event interceptor: a bounded
// producer/consumer pipeline between the storage engine's hooks and the
// bitmap engine, with drop-on-overflow semantics and a pool of long-lived
// worker goroutines.
package interceptor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taosdata/tsbackup-core/internal/metrics"
	"github.com/taosdata/tsbackup-core/internal/ring"
)

// Kind distinguishes the four storage hook callbacks.
type Kind int

const (
	BlockCreate Kind = iota
	BlockUpdate
	BlockFlush
	BlockDelete
)

func (k Kind) String() string {
	switch k {
	case BlockCreate:
		return "create"
	case BlockUpdate:
		return "update"
	case BlockFlush:
		return "flush"
	case BlockDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is a single storage-hook callback carrying (block_id, wal_offset,
// timestamp).
type Event struct {
	Kind      Kind
	BlockID   uint64
	WALOffset uint64
	Timestamp int64
}

// Sink is the user-supplied callback each worker invokes for a dequeued
// event — typically forwarding to the bitmap engine's mark operations.
// internal/hostintegration constructs the Sink that does exactly that.
type Sink func(Event) error

// defaultDequeueTimeout bounds how long a worker parks per dequeue, which
// is also the worst case for noticing shutdown on a quiet queue.
const defaultDequeueTimeout = time.Second

// recentDropCacheSize bounds the diagnostic LRU of recently-dropped block
// ids exposed via RecentlyDropped.
const recentDropCacheSize = 256

// Config configures a new Interceptor.
type Config struct {
	// EventBufferSize is the ring buffer's capacity (default 10,000).
	EventBufferSize int
	// CallbackThreads is the worker pool size (default 2).
	CallbackThreads int
	// DequeueTimeout overrides the per-call dequeue timeout; defaults to
	// one second.
	DequeueTimeout time.Duration
	Metrics        *metrics.Set
	Logger         *zap.Logger
}

// Interceptor is the bounded pipeline from storage hooks to a Sink.
type Interceptor struct {
	buf     *ring.Buffer[Event]
	sink    Sink
	threads int
	timeout time.Duration
	metrics *metrics.Set
	logger  *zap.Logger

	processed uint64
	dropped   uint64

	recentDrops *lru.Cache[uint64, time.Time]

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	group   *errgroup.Group
}

// New constructs an Interceptor. sink must not be nil.
func New(cfg Config, sink Sink) *Interceptor {
	bufSize := cfg.EventBufferSize
	if bufSize <= 0 {
		bufSize = 10000
	}
	threads := cfg.CallbackThreads
	if threads <= 0 {
		threads = 2
	}
	timeout := cfg.DequeueTimeout
	if timeout <= 0 {
		timeout = defaultDequeueTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	drops, _ := lru.New[uint64, time.Time](recentDropCacheSize)

	return &Interceptor{
		buf:         ring.New[Event](bufSize),
		sink:        sink,
		threads:     threads,
		timeout:     timeout,
		metrics:     cfg.Metrics,
		logger:      logger,
		recentDrops: drops,
	}
}

// Submit enqueues ev for dispatch. Never blocks the caller: on a full
// queue it increments the drop counter and returns ring.ErrFull rather
// than waiting. The storage engine's write path cannot tolerate
// backpressure from the backup subsystem, so dropping is the contract.
func (ic *Interceptor) Submit(ev Event) error {
	err := ic.buf.Enqueue(ev)
	if err != nil {
		atomic.AddUint64(&ic.dropped, 1)
		if ic.metrics != nil {
			ic.metrics.EventsDropped.Inc()
		}
		ic.recentDrops.Add(ev.BlockID, ev.timestampAsTime())
		ic.logger.Warn("event dropped", zap.Uint64("block_id", ev.BlockID),
			zap.String("kind", ev.Kind.String()), zap.Error(err))
		return err
	}
	if ic.metrics != nil {
		ic.metrics.QueueDepth.Set(float64(ic.buf.Len()))
	}
	return nil
}

func (e Event) timestampAsTime() time.Time {
	return time.Unix(0, e.Timestamp)
}

// Start spawns the worker pool. Idempotent: a second call on an already-
// started, not-yet-stopped Interceptor is a no-op.
func (ic *Interceptor) Start(ctx context.Context) error {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.started {
		return nil
	}
	ic.started = true
	ic.stopCh = make(chan struct{})

	group, gctx := errgroup.WithContext(ctx)
	ic.group = group
	for i := 0; i < ic.threads; i++ {
		id := i
		group.Go(func() error {
			ic.worker(gctx, id)
			return nil
		})
	}
	return nil
}

// worker repeatedly dequeues with a timeout and forwards to sink. It
// checks the stop signal only between dequeues, so a worker mid-dispatch
// always finishes that single event before exiting; the rest of the queue
// is abandoned on stop.
func (ic *Interceptor) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ic.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		ev, err := ic.buf.Dequeue(ic.timeout)
		switch err {
		case nil:
			ic.dispatch(ev)
		case ring.ErrTimeout:
			continue
		case ring.ErrShutdown:
			return
		default:
			ic.logger.Error("unexpected dequeue error", zap.Int("worker", id), zap.Error(err))
		}
	}
}

func (ic *Interceptor) dispatch(ev Event) {
	if err := ic.sink(ev); err != nil {
		ic.logger.Debug("sink rejected event", zap.Uint64("block_id", ev.BlockID),
			zap.String("kind", ev.Kind.String()), zap.Error(err))
		// Rejection (e.g. InvalidStateTransition) is the state machine
		// working as intended under event reordering, not a dispatch
		// failure; it still counts as processed.
	}
	atomic.AddUint64(&ic.processed, 1)
	if ic.metrics != nil {
		ic.metrics.EventsProcessed.Inc()
		ic.metrics.QueueDepth.Set(float64(ic.buf.Len()))
	}
}

// Stop signals shutdown and blocks until every worker has drained its
// current event and exited. Idempotent.
func (ic *Interceptor) Stop() error {
	ic.mu.Lock()
	if ic.stopped || !ic.started {
		ic.stopped = true
		ic.mu.Unlock()
		return nil
	}
	ic.stopped = true
	close(ic.stopCh)
	group := ic.group
	ic.mu.Unlock()

	ic.buf.Shutdown()
	return group.Wait()
}

// Stats reports lifetime processed/dropped counts.
type Stats struct {
	Processed uint64
	Dropped   uint64
}

func (ic *Interceptor) Stats() Stats {
	return Stats{
		Processed: atomic.LoadUint64(&ic.processed),
		Dropped:   atomic.LoadUint64(&ic.dropped),
	}
}

// RecentlyDropped reports whether id was dropped within the diagnostic LRU's
// retention window, for host-side alerting without scanning logs.
func (ic *Interceptor) RecentlyDropped(id uint64) bool {
	_, ok := ic.recentDrops.Get(id)
	return ok
}

// QueueDepth returns the number of events currently buffered.
func (ic *Interceptor) QueueDepth() int { return ic.buf.Len() }
