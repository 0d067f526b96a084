package gossip

import (
	"context"
	"sync"
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrossDAG/EmberDAG/internal/metrics"
	"github.com/CrossDAG/EmberDAG/internal/tangle"
	"github.com/CrossDAG/EmberDAG/internal/types"
)

const testNetworkID uint64 = 7

type recordingCounter struct {
	mu     sync.Mutex
	counts map[peer.ID]int
}

func (c *recordingCounter) IncKnownMessages(id peer.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[peer.ID]int)
	}
	c.counts[id]++
}

func (c *recordingCounter) count(id peer.ID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[id]
}

type processorHarness struct {
	processor *Processor
	tangle    *tangle.Tangle
	requested *RequestedMessages
	metrics   *metrics.Metrics
	known     *recordingCounter

	mu         sync.Mutex
	propagated []types.MessageID
	broadcast  []BroadcastItem
	milestones []types.MessageID
	requests   []pendingRequest

	propagator *Propagator
	caster     *Broadcaster
	validator  *MilestoneValidator
	requester  *Requester
}

func newProcessorHarness(t *testing.T) *processorHarness {
	t.Helper()

	h := &processorHarness{
		tangle:    tangle.New(),
		requested: NewRequestedMessages(),
		metrics:   metrics.New(),
		known:     &recordingCounter{},
	}

	h.propagator = NewPropagator(func(id types.MessageID) {
		h.mu.Lock()
		h.propagated = append(h.propagated, id)
		h.mu.Unlock()
	})
	h.caster = NewBroadcaster(func(item BroadcastItem) {
		h.mu.Lock()
		h.broadcast = append(h.broadcast, item)
		h.mu.Unlock()
	})
	h.validator = NewMilestoneValidator(func(id types.MessageID) {
		h.mu.Lock()
		h.milestones = append(h.milestones, id)
		h.mu.Unlock()
	})
	h.requester = NewRequester(h.requested, h.tangle.Contains, func(id types.MessageID, index uint32) {
		h.mu.Lock()
		h.requests = append(h.requests, pendingRequest{id: id, index: index})
		h.mu.Unlock()
	})

	h.processor = NewProcessor(
		ProcessorConfig{NetworkID: testNetworkID, MinPoWScore: 0.5},
		h.tangle, h.requested,
		h.propagator, h.caster, h.validator, h.requester,
		h.known, h.metrics,
	)

	require.NoError(t, h.propagator.Start())
	require.NoError(t, h.caster.Start())
	require.NoError(t, h.validator.Start())
	require.NoError(t, h.requester.Start())
	require.NoError(t, h.processor.Start())
	return h
}

// drain stops the pipeline and every worker so all queued work lands.
func (h *processorHarness) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, h.processor.Stop())
	require.NoError(t, h.requester.Stop())
	require.NoError(t, h.propagator.Stop())
	require.NoError(t, h.caster.Stop())
	require.NoError(t, h.validator.Stop())
}

func encodeTestMessage(t *testing.T, msg *types.Message) []byte {
	t.Helper()
	raw, err := types.EncodeMessage(msg)
	require.NoError(t, err)
	return raw
}

func TestProcessor_WrongNetworkRejected(t *testing.T) {
	h := newProcessorHarness(t)

	raw := encodeTestMessage(t, &types.Message{NetworkID: testNetworkID + 1})
	// Even a perfect proof-of-work score never saves a wrong-network message.
	_, err := h.processor.SubmitLocal(context.Background(), raw, 1e9)
	assert.ErrorIs(t, err, types.ErrWrongNetwork)

	h.drain(t)
	assert.Equal(t, 0, h.tangle.MessageCount())
	assert.Equal(t, uint64(1), h.metrics.InvalidMessages())
}

func TestProcessor_InsufficientPoWRejected(t *testing.T) {
	h := newProcessorHarness(t)

	raw := encodeTestMessage(t, &types.Message{NetworkID: testNetworkID})
	_, err := h.processor.SubmitLocal(context.Background(), raw, 0.1)
	assert.ErrorIs(t, err, types.ErrInsufficientPoW)

	h.drain(t)
	assert.Equal(t, 0, h.tangle.MessageCount())
}

func TestProcessor_MalformedRejected(t *testing.T) {
	h := newProcessorHarness(t)

	_, err := h.processor.SubmitLocal(context.Background(), []byte("garbage"), 1.0)
	assert.ErrorIs(t, err, types.ErrMalformedMessage)

	h.drain(t)
	assert.Equal(t, 0, h.tangle.MessageCount())
}

func TestProcessor_NetworkRejectionIsSilent(t *testing.T) {
	h := newProcessorHarness(t)

	require.NoError(t, h.processor.SubmitFromPeer([]byte("garbage"), peer.ID("peer-a"), 1.0))

	h.drain(t)
	assert.Equal(t, uint64(1), h.metrics.InvalidMessages())
	assert.Equal(t, 0, h.tangle.MessageCount())
}

func TestProcessor_NewMessageFlow(t *testing.T) {
	h := newProcessorHarness(t)

	raw := encodeTestMessage(t, &types.Message{
		NetworkID: testNetworkID,
		Parent1:   types.MessageID{1},
		Parent2:   types.MessageID{2},
	})
	id, err := h.processor.SubmitLocal(context.Background(), raw, 1.0)
	require.NoError(t, err)
	assert.Equal(t, types.ComputeMessageID(raw), id)

	h.drain(t)
	assert.True(t, h.tangle.Contains(id))
	assert.Equal(t, []types.MessageID{id}, h.propagated)
	// Unsolicited: relayed onward.
	require.Len(t, h.broadcast, 1)
	assert.Equal(t, raw, h.broadcast[0].Raw)
	assert.Empty(t, h.requests)
	assert.Equal(t, uint64(1), h.metrics.NewMessages())
}

func TestProcessor_DuplicateIsKnown(t *testing.T) {
	h := newProcessorHarness(t)

	raw := encodeTestMessage(t, &types.Message{NetworkID: testNetworkID})
	first, err := h.processor.SubmitLocal(context.Background(), raw, 1.0)
	require.NoError(t, err)

	// The relaying peer gets its known counter bumped; the submitter still
	// receives the same ID.
	require.NoError(t, h.processor.SubmitFromPeer(raw, peer.ID("peer-a"), 1.0))
	second, err := h.processor.SubmitLocal(context.Background(), raw, 1.0)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	h.drain(t)
	assert.Equal(t, 1, h.tangle.MessageCount())
	assert.Equal(t, 1, h.known.count(peer.ID("peer-a")))
	assert.Equal(t, uint64(2), h.metrics.KnownMessages())
	// Duplicates are neither propagated nor rebroadcast.
	assert.Len(t, h.propagated, 1)
	assert.Len(t, h.broadcast, 1)
}

func TestProcessor_RequestedMessageRequestsParents(t *testing.T) {
	h := newProcessorHarness(t)

	raw := encodeTestMessage(t, &types.Message{
		NetworkID: testNetworkID,
		Parent1:   types.MessageID{0xaa},
		Parent2:   types.MessageID{0xbb},
	})
	id := types.ComputeMessageID(raw)
	h.requested.Put(id, 3)

	require.NoError(t, h.processor.SubmitFromPeer(raw, peer.ID("peer-a"), 1.0))

	h.drain(t)
	// The request entry is consumed and both parents are requested with the
	// original index.
	assert.False(t, h.requested.Has(id))
	require.Len(t, h.requests, 2)
	assert.Equal(t, pendingRequest{id: types.MessageID{0xaa}, index: 3}, h.requests[0])
	assert.Equal(t, pendingRequest{id: types.MessageID{0xbb}, index: 3}, h.requests[1])
	// Requested messages are not rebroadcast.
	assert.Empty(t, h.broadcast)

	meta, ok := h.tangle.Metadata(id)
	require.True(t, ok)
	assert.True(t, meta.Requested)
}

func TestProcessor_IdenticalParentsRequestedOnce(t *testing.T) {
	h := newProcessorHarness(t)

	raw := encodeTestMessage(t, &types.Message{
		NetworkID: testNetworkID,
		Parent1:   types.MessageID{0xcc},
		Parent2:   types.MessageID{0xcc},
	})
	id := types.ComputeMessageID(raw)
	h.requested.Put(id, 5)

	require.NoError(t, h.processor.SubmitFromPeer(raw, peer.ID("peer-a"), 1.0))

	h.drain(t)
	require.Len(t, h.requests, 1)
	assert.Equal(t, pendingRequest{id: types.MessageID{0xcc}, index: 5}, h.requests[0])
}

func TestProcessor_MilestoneRouted(t *testing.T) {
	h := newProcessorHarness(t)

	raw := encodeTestMessage(t, &types.Message{
		NetworkID: testNetworkID,
		Payload:   &types.MilestonePayload{Index: 12, Timestamp: 1700000000},
	})
	id, err := h.processor.SubmitLocal(context.Background(), raw, 1.0)
	require.NoError(t, err)

	h.drain(t)
	assert.Equal(t, []types.MessageID{id}, h.milestones)
}

func TestProcessor_IndexationNotRouted(t *testing.T) {
	h := newProcessorHarness(t)

	raw := encodeTestMessage(t, &types.Message{
		NetworkID: testNetworkID,
		Payload:   &types.IndexationPayload{Index: []byte("tag"), Data: []byte("data")},
	})
	_, err := h.processor.SubmitLocal(context.Background(), raw, 1.0)
	require.NoError(t, err)

	h.drain(t)
	assert.Empty(t, h.milestones)
}

func TestProcessor_SubmitAfterStop(t *testing.T) {
	h := newProcessorHarness(t)
	h.drain(t)

	err := h.processor.SubmitFromPeer([]byte("raw"), peer.ID("peer-a"), 1.0)
	assert.Error(t, err)
}
