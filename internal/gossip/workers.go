package gossip

import (
	"fmt"
	"log"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/CrossDAG/EmberDAG/internal/types"
)

// Propagator represents the worker forwarding newly accepted message IDs
// to the solidification logic.
type Propagator struct {
	queue  *fifo[types.MessageID]
	handle func(types.MessageID)
	logger *log.Logger
	wg     sync.WaitGroup
}

// NewPropagator creates a new propagator with the given handler.
func NewPropagator(handle func(types.MessageID)) *Propagator {
	return &Propagator{
		queue:  newFifo[types.MessageID](),
		handle: handle,
		logger: log.New(log.Writer(), "[Propagator] ", log.LstdFlags),
	}
}

// Start starts the propagator worker.
func (p *Propagator) Start() error {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			id, ok := p.queue.Pop()
			if !ok {
				return
			}
			p.handle(id)
		}
	}()
	return nil
}

// Stop closes the intake and waits for the queued IDs to drain.
func (p *Propagator) Stop() error {
	p.queue.Close()
	p.wg.Wait()
	return nil
}

// Submit enqueues a message ID for propagation.
func (p *Propagator) Submit(id types.MessageID) error {
	if err := p.queue.Push(id); err != nil {
		return fmt.Errorf("failed to submit to propagator: %v", err)
	}
	return nil
}

// BroadcastItem represents a raw message to relay, together with the peer
// it came from (empty for locally submitted messages).
type BroadcastItem struct {
	Source peer.ID
	Raw    []byte
}

// Broadcaster represents the worker relaying unsolicited new messages to
// the rest of the network.
type Broadcaster struct {
	queue  *fifo[BroadcastItem]
	handle func(BroadcastItem)
	logger *log.Logger
	wg     sync.WaitGroup
}

// NewBroadcaster creates a new broadcaster with the given handler.
func NewBroadcaster(handle func(BroadcastItem)) *Broadcaster {
	return &Broadcaster{
		queue:  newFifo[BroadcastItem](),
		handle: handle,
		logger: log.New(log.Writer(), "[Broadcaster] ", log.LstdFlags),
	}
}

// Start starts the broadcaster worker.
func (b *Broadcaster) Start() error {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			item, ok := b.queue.Pop()
			if !ok {
				return
			}
			b.handle(item)
		}
	}()
	return nil
}

// Stop closes the intake and waits for the queued items to drain.
func (b *Broadcaster) Stop() error {
	b.queue.Close()
	b.wg.Wait()
	return nil
}

// Submit enqueues a raw message for relay.
func (b *Broadcaster) Submit(item BroadcastItem) error {
	if err := b.queue.Push(item); err != nil {
		return fmt.Errorf("failed to submit to broadcaster: %v", err)
	}
	return nil
}

// MilestoneValidator represents the worker handing milestone messages to
// the milestone validation logic.
type MilestoneValidator struct {
	queue  *fifo[types.MessageID]
	handle func(types.MessageID)
	logger *log.Logger
	wg     sync.WaitGroup
}

// NewMilestoneValidator creates a new milestone validator with the given
// handler.
func NewMilestoneValidator(handle func(types.MessageID)) *MilestoneValidator {
	return &MilestoneValidator{
		queue:  newFifo[types.MessageID](),
		handle: handle,
		logger: log.New(log.Writer(), "[Milestone] ", log.LstdFlags),
	}
}

// Start starts the milestone validator worker.
func (m *MilestoneValidator) Start() error {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			id, ok := m.queue.Pop()
			if !ok {
				return
			}
			m.handle(id)
		}
	}()
	return nil
}

// Stop closes the intake and waits for the queued IDs to drain.
func (m *MilestoneValidator) Stop() error {
	m.queue.Close()
	m.wg.Wait()
	return nil
}

// Submit enqueues a milestone message ID for validation.
func (m *MilestoneValidator) Submit(id types.MessageID) error {
	if err := m.queue.Push(id); err != nil {
		return fmt.Errorf("failed to submit to milestone validator: %v", err)
	}
	return nil
}

// RequestTransmitter sends one message request to the network.
type RequestTransmitter func(id types.MessageID, index uint32)

// pendingRequest is one queued message request.
type pendingRequest struct {
	id    types.MessageID
	index uint32
}

// Requester represents the parent-request issuer. It tracks outstanding
// requests and transmits them to the network, suppressing requests for
// messages that are already stored or already pending.
type Requester struct {
	queue     *fifo[pendingRequest]
	requested *RequestedMessages
	contains  func(types.MessageID) bool
	transmit  RequestTransmitter
	logger    *log.Logger
	wg        sync.WaitGroup
}

// NewRequester creates a new requester. contains reports whether a message
// is already stored in the tangle.
func NewRequester(requested *RequestedMessages, contains func(types.MessageID) bool, transmit RequestTransmitter) *Requester {
	return &Requester{
		queue:     newFifo[pendingRequest](),
		requested: requested,
		contains:  contains,
		transmit:  transmit,
		logger:    log.New(log.Writer(), "[Requester] ", log.LstdFlags),
	}
}

// Start starts the requester worker.
func (r *Requester) Start() error {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			req, ok := r.queue.Pop()
			if !ok {
				return
			}
			r.transmit(req.id, req.index)
		}
	}()
	return nil
}

// Stop closes the intake and waits for the queued requests to drain.
func (r *Requester) Stop() error {
	r.queue.Close()
	r.wg.Wait()
	return nil
}

// Request issues a request for a message, tagged with the requester index.
// Requests for stored or already pending messages are suppressed.
func (r *Requester) Request(id types.MessageID, index uint32) {
	if r.contains(id) {
		return
	}
	if !r.requested.Put(id, index) {
		return
	}
	if err := r.queue.Push(pendingRequest{id: id, index: index}); err != nil {
		r.logger.Printf("dropping request for %s: %v", id.Hex(), err)
	}
}
