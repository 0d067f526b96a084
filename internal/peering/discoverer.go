package peering

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/CrossDAG/EmberDAG/internal/metrics"
)

// Default scheduling parameters.
const (
	DefaultReverifyInterval = 10 * time.Second
	DefaultQueryInterval    = 60 * time.Second
	DefaultTaskTimeout      = 30 * time.Second
)

// VerificationService performs a ping/pong handshake with a peer and
// returns the services it advertises.
type VerificationService interface {
	Verify(ctx context.Context, id peer.ID) ([]string, error)
}

// DiscoveryService performs a peer-query exchange with a peer and returns
// the number of previously unknown peers it reported.
type DiscoveryService interface {
	Query(ctx context.Context, id peer.ID) (int, error)
}

// DiscovererConfig represents the discoverer's scheduling configuration.
type DiscovererConfig struct {
	ReverifyInterval time.Duration
	QueryInterval    time.Duration
	TaskTimeout      time.Duration
	// MaxInflight bounds the outstanding verification/query tasks;
	// zero keeps dispatch unbounded.
	MaxInflight int
}

// Discoverer represents the peer-topology maintenance engine: it
// periodically reverifies the stalest active peer and queries selected
// peers for new ones, demoting peers that fail either exchange.
type Discoverer struct {
	config   DiscovererConfig
	registry *Registry
	verifier VerificationService
	querier  DiscoveryService
	metrics  *metrics.Metrics
	logger   *log.Logger

	events   chan Event
	inflight atomic.Int64

	running bool
	cancel  context.CancelFunc
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// NewDiscoverer creates a new discoverer.
func NewDiscoverer(config DiscovererConfig, registry *Registry, verifier VerificationService, querier DiscoveryService, m *metrics.Metrics) *Discoverer {
	if config.ReverifyInterval <= 0 {
		config.ReverifyInterval = DefaultReverifyInterval
	}
	if config.QueryInterval <= 0 {
		config.QueryInterval = DefaultQueryInterval
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = DefaultTaskTimeout
	}
	return &Discoverer{
		config:   config,
		registry: registry,
		verifier: verifier,
		querier:  querier,
		metrics:  m,
		logger:   log.New(log.Writer(), "[Peering] ", log.LstdFlags),
		events:   make(chan Event, 64),
	}
}

// Events returns the channel of peering events.
func (d *Discoverer) Events() <-chan Event {
	return d.events
}

// Start starts the reverification and query loops.
func (d *Discoverer) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(2)
	go d.reverifyLoop(ctx)
	go d.queryLoop(ctx)
	d.running = true
	return nil
}

// Stop stops the loops. In-flight verification and query tasks are not
// awaited; they wind down on their own timeouts.
func (d *Discoverer) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}

	d.cancel()
	d.wg.Wait()
	d.running = false
	return nil
}

// reverifyLoop periodically reverifies the stalest active peer.
func (d *Discoverer) reverifyLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ReverifyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.reverifyTick(ctx)
		}
	}
}

// queryLoop periodically queries selected peers for new peers.
func (d *Discoverer) queryLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.QueryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.queryTick(ctx)
		}
	}
}

// reverifyTick reverifies the oldest active peer.
func (d *Discoverer) reverifyTick(ctx context.Context) {
	id, ok := d.registry.Oldest()
	if !ok {
		d.logger.Printf("no active peers to reverify")
		return
	}

	d.dispatch(ctx, func(taskCtx context.Context) {
		services, err := d.verifier.Verify(taskCtx, id)
		if err != nil {
			d.logger.Printf("reverification of %s failed: %v", id.ShortString(), err)
			d.metrics.IncVerificationsFailed()
			d.demote(id, "verification failed")
			return
		}
		// Recency is bumped by the handshake response path, not here.
		d.logger.Printf("reverified %s (%d services)", id.ShortString(), len(services))
	})
}

// queryTick queries the selected candidate peers.
func (d *Discoverer) queryTick(ctx context.Context) {
	candidates := selectPeersToQuery(d.registry.VerifiedPeers())
	if len(candidates) == 0 {
		d.logger.Printf("no verified peers to query")
		return
	}

	for _, id := range candidates {
		id := id
		d.dispatch(ctx, func(taskCtx context.Context) {
			count, err := d.querier.Query(taskCtx, id)
			if err != nil {
				d.logger.Printf("query of %s failed: %v", id.ShortString(), err)
				d.metrics.IncQueriesFailed()
				d.demote(id, "query failed")
				return
			}
			d.registry.SetLastNewPeers(id, count)
			d.logger.Printf("queried %s, %d new peers", id.ShortString(), count)
		})
	}
}

// dispatch runs a task in its own goroutine under the task timeout. The
// scheduler never blocks on a task; a saturated task set skips the
// dispatch instead of delaying the tick.
func (d *Discoverer) dispatch(ctx context.Context, task func(context.Context)) {
	if d.config.MaxInflight > 0 && d.inflight.Load() >= int64(d.config.MaxInflight) {
		d.logger.Printf("task limit reached (%d in flight), skipping dispatch", d.config.MaxInflight)
		return
	}

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Add(-1)

		taskCtx, cancel := context.WithTimeout(ctx, d.config.TaskTimeout)
		defer cancel()
		task(taskCtx)
	}()
}

// demote moves a failed peer to the replacement pool and emits a
// peer-removed event.
func (d *Discoverer) demote(id peer.ID, reason string) {
	if !d.registry.Demote(id) {
		return
	}
	d.metrics.IncPeersRemoved()

	select {
	case d.events <- Event{Kind: EventPeerRemoved, Peer: id, Reason: reason}:
	default:
		d.logger.Printf("event channel full, dropping peer removed event for %s", id.ShortString())
	}
}
