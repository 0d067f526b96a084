package gossip

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/CrossDAG/EmberDAG/internal/metrics"
	"github.com/CrossDAG/EmberDAG/internal/tangle"
	"github.com/CrossDAG/EmberDAG/internal/types"
)

// Event represents one inbound message: its raw encoding, its
// proof-of-work score, the peer it came from (empty for local
// submissions) and an optional notifier for the submitter.
type Event struct {
	Raw      []byte
	POWScore float64
	From     peer.ID
	Notifier chan<- SubmitResult
}

// SubmitResult represents the pipeline's reply to a local submitter.
type SubmitResult struct {
	ID  types.MessageID
	Err error
}

// KnownPeerCounter counts duplicate messages relayed per peer.
type KnownPeerCounter interface {
	IncKnownMessages(id peer.ID)
}

// ProcessorConfig represents the pipeline's validation configuration.
type ProcessorConfig struct {
	NetworkID   uint64
	MinPoWScore float64
}

// Processor represents the message ingestion pipeline: a single consumer
// that validates, deduplicates and routes every inbound message.
type Processor struct {
	config    ProcessorConfig
	tangle    *tangle.Tangle
	requested *RequestedMessages

	propagator  *Propagator
	broadcaster *Broadcaster
	milestones  *MilestoneValidator
	requester   *Requester
	knownPeers  KnownPeerCounter

	metrics *metrics.Metrics
	logger  *log.Logger

	intake  *fifo[Event]
	stopped chan struct{}
	mu      sync.Mutex
	running bool
}

// NewProcessor creates a new message processor.
func NewProcessor(config ProcessorConfig, tg *tangle.Tangle, requested *RequestedMessages,
	propagator *Propagator, broadcaster *Broadcaster, milestones *MilestoneValidator,
	requester *Requester, knownPeers KnownPeerCounter, m *metrics.Metrics) *Processor {
	return &Processor{
		config:      config,
		tangle:      tg,
		requested:   requested,
		propagator:  propagator,
		broadcaster: broadcaster,
		milestones:  milestones,
		requester:   requester,
		knownPeers:  knownPeers,
		metrics:     m,
		logger:      log.New(log.Writer(), "[Gossip] ", log.LstdFlags),
		intake:      newFifo[Event](),
		stopped:     make(chan struct{}),
	}
}

// Start starts the single consumer loop.
func (p *Processor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	go func() {
		defer close(p.stopped)
		for {
			ev, ok := p.intake.Pop()
			if !ok {
				return
			}
			p.process(ev)
		}
	}()
	p.running = true
	return nil
}

// Stop closes the intake. The consumer drains the queued events and exits.
func (p *Processor) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	p.intake.Close()
	<-p.stopped
	p.running = false
	return nil
}

// Stopped returns a channel closed once the consumer has exited.
func (p *Processor) Stopped() <-chan struct{} {
	return p.stopped
}

// SubmitFromPeer enqueues a message received from the network. It never
// blocks the receive path.
func (p *Processor) SubmitFromPeer(raw []byte, from peer.ID, score float64) error {
	if err := p.intake.Push(Event{Raw: raw, POWScore: score, From: from}); err != nil {
		return fmt.Errorf("failed to submit message: %v", err)
	}
	return nil
}

// SubmitLocal enqueues a locally built message and waits for the
// pipeline's verdict.
func (p *Processor) SubmitLocal(ctx context.Context, raw []byte, score float64) (types.MessageID, error) {
	notifier := make(chan SubmitResult, 1)
	if err := p.intake.Push(Event{Raw: raw, POWScore: score, Notifier: notifier}); err != nil {
		return types.EmptyMessageID, fmt.Errorf("failed to submit message: %v", err)
	}

	select {
	case res := <-notifier:
		return res.ID, res.Err
	case <-ctx.Done():
		return types.EmptyMessageID, ctx.Err()
	}
}

// process runs one event through the pipeline stages.
func (p *Processor) process(ev Event) {
	msg, err := types.DecodeMessage(ev.Raw)
	if err != nil {
		p.reject(ev, err)
		return
	}

	if msg.NetworkID != p.config.NetworkID {
		p.reject(ev, fmt.Errorf("%w: got network %d, want %d", types.ErrWrongNetwork, msg.NetworkID, p.config.NetworkID))
		return
	}

	if ev.POWScore < p.config.MinPoWScore {
		p.reject(ev, fmt.Errorf("%w: score %f below minimum %f", types.ErrInsufficientPoW, ev.POWScore, p.config.MinPoWScore))
		return
	}

	// Hash only after the cheap rejections.
	id := types.ComputeMessageID(ev.Raw)

	meta := &types.MessageMetadata{
		ArrivedAt: time.Now(),
		Requested: p.requested.Has(id),
	}

	if _, inserted := p.tangle.Insert(msg, id, meta); !inserted {
		p.processKnown(ev, id)
		return
	}
	p.processNew(ev, msg, id)
}

// processNew routes a newly accepted message.
func (p *Processor) processNew(ev Event, msg *types.Message, id types.MessageID) {
	p.metrics.IncNewMessages()
	p.notify(ev, id, nil)

	if err := p.propagator.Submit(id); err != nil {
		p.logger.Printf("propagation of %s failed: %v", id.Hex(), err)
	}

	if details, wasRequested := p.requested.Remove(id); wasRequested {
		p.requester.Request(msg.Parent1, details.Index)
		if msg.Parent2 != msg.Parent1 {
			p.requester.Request(msg.Parent2, details.Index)
		}
	} else {
		if err := p.broadcaster.Submit(BroadcastItem{Source: ev.From, Raw: ev.Raw}); err != nil {
			p.logger.Printf("broadcast of %s failed: %v", id.Hex(), err)
		}
	}

	switch msg.Payload.(type) {
	case *types.MilestonePayload:
		if err := p.milestones.Submit(id); err != nil {
			p.logger.Printf("milestone submission of %s failed: %v", id.Hex(), err)
		}
	case *types.IndexationPayload:
		// Inspected but not acted on further.
	}
}

// processKnown handles a duplicate arrival.
func (p *Processor) processKnown(ev Event, id types.MessageID) {
	p.metrics.IncKnownMessages()
	if ev.From != "" && p.knownPeers != nil {
		p.knownPeers.IncKnownMessages(ev.From)
	}
	// A duplicate is not an error to the submitter.
	p.notify(ev, id, nil)
}

// reject records a terminal rejection.
func (p *Processor) reject(ev Event, err error) {
	p.metrics.IncInvalidMessages()
	if ev.Notifier != nil {
		p.notify(ev, types.EmptyMessageID, err)
		return
	}
	p.logger.Printf("rejected message from %s: %v", peerLabel(ev.From), err)
}

// notify replies to a local submitter when a notifier is present.
func (p *Processor) notify(ev Event, id types.MessageID, err error) {
	if ev.Notifier == nil {
		return
	}
	select {
	case ev.Notifier <- SubmitResult{ID: id, Err: err}:
	default:
	}
}

func peerLabel(id peer.ID) string {
	if id == "" {
		return "local"
	}
	return id.ShortString()
}
