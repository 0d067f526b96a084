package node

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/CrossDAG/EmberDAG/internal/api"
	"github.com/CrossDAG/EmberDAG/internal/config"
	"github.com/CrossDAG/EmberDAG/internal/gossip"
	"github.com/CrossDAG/EmberDAG/internal/metrics"
	"github.com/CrossDAG/EmberDAG/internal/network"
	"github.com/CrossDAG/EmberDAG/internal/peering"
	"github.com/CrossDAG/EmberDAG/internal/storage"
	"github.com/CrossDAG/EmberDAG/internal/tangle"
	"github.com/CrossDAG/EmberDAG/internal/types"
)

// Node represents an assembled EmberDAG node: the autopeering engine and
// the message ingestion pipeline with all their collaborators wired up.
type Node struct {
	config *config.Config
	logger *log.Logger

	identity peer.ID
	privKey  crypto.PrivKey

	registry  *peering.Registry
	book      *network.AddressBook
	tangle    *tangle.Tangle
	requested *gossip.RequestedMessages
	metrics   *metrics.Metrics

	propagator  *gossip.Propagator
	broadcaster *gossip.Broadcaster
	milestones  *gossip.MilestoneValidator
	requester   *gossip.Requester
	processor   *gossip.Processor

	service    *network.Service
	discoverer *peering.Discoverer
	apiServer  *api.Server

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewNode creates and wires a node from its configuration.
func NewNode(cfg *config.Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &Node{
		config: cfg,
		logger: log.New(log.Writer(), "[Node] ", log.LstdFlags),
	}

	privKey, identity, err := LoadOrCreateIdentity(filepath.Join(cfg.DataDir, "identity.key"))
	if err != nil {
		return nil, err
	}
	n.privKey = privKey
	n.identity = identity

	n.metrics = metrics.New()
	n.registry = peering.NewRegistry(cfg.Peering.MaxActive, cfg.Peering.MaxReplacements)
	n.book = network.NewAddressBook()
	n.tangle = tangle.New()
	n.requested = gossip.NewRequestedMessages()

	if err := n.loadPeers(); err != nil {
		return nil, err
	}
	for _, entry := range cfg.Network.EntryPeers {
		id := peer.ID(entry.ID)
		n.registry.AddEntry(id, entry.Addr)
		n.book.SetAddr(id, entry.Addr)
	}

	networkID := types.NetworkIDFromName(cfg.Network.Name)

	n.propagator = gossip.NewPropagator(func(id types.MessageID) {
		// Solidification lives outside this core; record the hand-off.
		n.logger.Printf("propagating message %s", id.Hex())
	})
	n.broadcaster = gossip.NewBroadcaster(func(item gossip.BroadcastItem) {
		n.service.Broadcast(item.Raw, item.Source)
	})
	n.milestones = gossip.NewMilestoneValidator(func(id types.MessageID) {
		msg, ok := n.tangle.Get(id)
		if !ok {
			return
		}
		if payload, ok := msg.Payload.(*types.MilestonePayload); ok {
			n.logger.Printf("milestone %d received as message %s", payload.Index, id.Hex())
		}
	})
	n.requester = gossip.NewRequester(n.requested, n.tangle.Contains, func(id types.MessageID, index uint32) {
		n.metrics.IncMessagesRequested()
		if err := n.service.RequestMessage(id, index); err != nil {
			n.logger.Printf("request for %s failed: %v", id.Hex(), err)
		}
	})

	n.processor = gossip.NewProcessor(
		gossip.ProcessorConfig{
			NetworkID:   networkID,
			MinPoWScore: cfg.Gossip.MinPoWScore,
		},
		n.tangle, n.requested,
		n.propagator, n.broadcaster, n.milestones, n.requester,
		n.book, n.metrics,
	)

	n.service = network.NewService(network.Config{
		ListenAddr: cfg.Network.ListenAddr,
		Services:   []string{"gossip", "autopeering"},
	}, n.identity, n.registry, n.book, n.processor, n.tangle)

	n.discoverer = peering.NewDiscoverer(peering.DiscovererConfig{
		ReverifyInterval: cfg.Peering.ReverifyInterval,
		QueryInterval:    cfg.Peering.QueryInterval,
		TaskTimeout:      cfg.Peering.TaskTimeout,
		MaxInflight:      cfg.Peering.MaxInflight,
	}, n.registry, n.service, n.service, n.metrics)

	n.apiServer = api.NewServer(api.Config{
		BindAddr:    cfg.API.BindAddr,
		NetworkID:   networkID,
		MinPoWScore: cfg.Gossip.MinPoWScore,
	}, n.processor, n.tangle, n.registry, n.metrics)

	return n, nil
}

// Identity returns the node's peer ID.
func (n *Node) Identity() peer.ID {
	return n.identity
}

// Start brings the node's components up in dependency order.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return nil
	}
	n.ctx, n.cancel = context.WithCancel(context.Background())

	for _, start := range []func() error{
		n.propagator.Start,
		n.broadcaster.Start,
		n.milestones.Start,
		n.requester.Start,
		n.processor.Start,
		n.service.Start,
	} {
		if err := start(); err != nil {
			return err
		}
	}
	if err := n.discoverer.Start(n.ctx); err != nil {
		return err
	}
	if err := n.apiServer.Start(); err != nil {
		return err
	}

	n.wg.Add(1)
	go n.consumeEvents()

	n.running = true
	n.logger.Printf("node %s started on %s", n.identity.ShortString(), n.service.Addr())
	return nil
}

// Stop brings the components down in reverse order and persists the peer
// lists.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil
	}

	if err := n.apiServer.Stop(); err != nil {
		n.logger.Printf("failed to stop API server: %v", err)
	}
	if err := n.discoverer.Stop(); err != nil {
		n.logger.Printf("failed to stop discoverer: %v", err)
	}
	if err := n.service.Stop(); err != nil {
		n.logger.Printf("failed to stop network service: %v", err)
	}
	n.processor.Stop()
	n.requester.Stop()
	n.milestones.Stop()
	n.broadcaster.Stop()
	n.propagator.Stop()

	n.cancel()
	n.wg.Wait()

	if err := n.savePeers(); err != nil {
		n.logger.Printf("failed to persist peers: %v", err)
	}

	n.running = false
	n.logger.Printf("node stopped")
	return nil
}

// consumeEvents handles peering events until shutdown.
func (n *Node) consumeEvents() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			return
		case ev := <-n.discoverer.Events():
			switch ev.Kind {
			case peering.EventPeerRemoved:
				n.logger.Printf("peer %s removed: %s", ev.Peer.ShortString(), ev.Reason)
			}
		}
	}
}

// peersFile returns the path of the persisted peer snapshot.
func (n *Node) peersFile() string {
	return filepath.Join(n.config.DataDir, "peers.json")
}

// loadPeers restores the persisted peer lists. Verified peers re-enter the
// active list; the rest become entry peers.
func (n *Node) loadPeers() error {
	records, err := storage.LoadPeers(n.peersFile())
	if err != nil {
		return fmt.Errorf("failed to load peers: %v", err)
	}

	for _, record := range records {
		id := peer.ID(record.ID)
		n.book.SetAddr(id, record.Addr)
		if record.VerifiedCount >= 1 {
			n.registry.Insert(&peering.ActivePeer{
				ID:            id,
				Addr:          record.Addr,
				VerifiedCount: record.VerifiedCount,
				LastNewPeers:  record.LastNewPeers,
			})
		} else {
			n.registry.AddEntry(id, record.Addr)
		}
	}
	if len(records) > 0 {
		n.logger.Printf("restored %d peers", len(records))
	}
	return nil
}

// savePeers persists the active list and the replacement pool.
func (n *Node) savePeers() error {
	records := make([]storage.PeerRecord, 0)
	for _, p := range n.registry.ActivePeers() {
		records = append(records, storage.PeerRecord{
			ID:            string(p.ID),
			Addr:          p.Addr,
			VerifiedCount: p.VerifiedCount,
			LastNewPeers:  p.LastNewPeers,
		})
	}
	for _, p := range n.registry.ReplacementPeers() {
		records = append(records, storage.PeerRecord{
			ID:   string(p.ID),
			Addr: p.Addr,
		})
	}
	return storage.SavePeers(n.peersFile(), records)
}
