package network

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrossDAG/EmberDAG/internal/gossip"
	"github.com/CrossDAG/EmberDAG/internal/metrics"
	"github.com/CrossDAG/EmberDAG/internal/peering"
	"github.com/CrossDAG/EmberDAG/internal/tangle"
	"github.com/CrossDAG/EmberDAG/internal/types"
)

const testNetworkID uint64 = 11

// testNode bundles one in-process service with its collaborators.
type testNode struct {
	id       peer.ID
	service  *Service
	registry *peering.Registry
	book     *AddressBook
	tangle   *tangle.Tangle
}

func newTestNode(t *testing.T, id peer.ID) *testNode {
	t.Helper()

	registry := peering.NewRegistry(10, 5)
	book := NewAddressBook()
	tg := tangle.New()
	requested := gossip.NewRequestedMessages()

	propagator := gossip.NewPropagator(func(types.MessageID) {})
	broadcaster := gossip.NewBroadcaster(func(gossip.BroadcastItem) {})
	milestones := gossip.NewMilestoneValidator(func(types.MessageID) {})
	requester := gossip.NewRequester(requested, tg.Contains, func(types.MessageID, uint32) {})

	processor := gossip.NewProcessor(
		gossip.ProcessorConfig{NetworkID: testNetworkID},
		tg, requested, propagator, broadcaster, milestones, requester, book, metrics.New(),
	)

	service := NewService(Config{
		ListenAddr:  "127.0.0.1:0",
		Services:    []string{"gossip"},
		DialTimeout: 2 * time.Second,
	}, id, registry, book, processor, tg)

	require.NoError(t, propagator.Start())
	require.NoError(t, broadcaster.Start())
	require.NoError(t, milestones.Start())
	require.NoError(t, requester.Start())
	require.NoError(t, processor.Start())
	require.NoError(t, service.Start())

	t.Cleanup(func() {
		service.Stop()
		processor.Stop()
		requester.Stop()
		milestones.Stop()
		broadcaster.Stop()
		propagator.Stop()
	})

	return &testNode{id: id, service: service, registry: registry, book: book, tangle: tg}
}

func TestService_Verify(t *testing.T) {
	a := newTestNode(t, peer.ID("node-a"))
	b := newTestNode(t, peer.ID("node-b"))
	a.book.SetAddr(b.id, b.service.Addr())

	services, err := a.service.Verify(context.Background(), b.id)
	require.NoError(t, err)
	assert.Equal(t, []string{"gossip"}, services)

	// The pong response path inserted the peer as verified.
	verified := a.registry.VerifiedPeers()
	require.Len(t, verified, 1)
	assert.Equal(t, b.id, verified[0].ID)
	assert.Equal(t, 1, verified[0].VerifiedCount)
}

func TestService_VerifyUnknownPeer(t *testing.T) {
	a := newTestNode(t, peer.ID("node-a"))

	_, err := a.service.Verify(context.Background(), peer.ID("nobody"))
	assert.ErrorIs(t, err, ErrPeerNotFound)
}

func TestService_Query(t *testing.T) {
	a := newTestNode(t, peer.ID("node-a"))
	b := newTestNode(t, peer.ID("node-b"))
	a.book.SetAddr(b.id, b.service.Addr())
	b.book.SetAddr(peer.ID("node-c"), "127.0.0.1:9999")

	count, err := a.service.Query(context.Background(), b.id)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, a.book.Has(peer.ID("node-c")))

	// A repeat query discovers nothing new.
	count, err = a.service.Query(context.Background(), b.id)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestService_BroadcastDelivers(t *testing.T) {
	a := newTestNode(t, peer.ID("node-a"))
	b := newTestNode(t, peer.ID("node-b"))
	a.book.SetAddr(b.id, b.service.Addr())
	a.registry.Insert(&peering.ActivePeer{ID: b.id, Addr: b.service.Addr(), VerifiedCount: 1})

	raw, err := types.EncodeMessage(&types.Message{NetworkID: testNetworkID, Nonce: 1})
	require.NoError(t, err)
	id := types.ComputeMessageID(raw)

	a.service.Broadcast(raw, "")

	require.Eventually(t, func() bool {
		return b.tangle.Contains(id)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestService_RequestMessage(t *testing.T) {
	a := newTestNode(t, peer.ID("node-a"))
	b := newTestNode(t, peer.ID("node-b"))
	a.book.SetAddr(b.id, b.service.Addr())
	a.registry.Insert(&peering.ActivePeer{ID: b.id, Addr: b.service.Addr(), VerifiedCount: 1})

	msg := &types.Message{NetworkID: testNetworkID, Nonce: 2}
	raw, err := types.EncodeMessage(msg)
	require.NoError(t, err)
	id := types.ComputeMessageID(raw)
	b.tangle.Insert(msg, id, &types.MessageMetadata{ArrivedAt: time.Now()})

	require.NoError(t, a.service.RequestMessage(id, 0))

	require.Eventually(t, func() bool {
		return a.tangle.Contains(id)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestService_RequestMessageNoPeers(t *testing.T) {
	a := newTestNode(t, peer.ID("node-a"))

	err := a.service.RequestMessage(types.MessageID{1}, 0)
	assert.ErrorIs(t, err, ErrNoPeers)
}
