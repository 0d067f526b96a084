package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/CrossDAG/EmberDAG/internal/gossip"
	"github.com/CrossDAG/EmberDAG/internal/peering"
	"github.com/CrossDAG/EmberDAG/internal/pow"
	"github.com/CrossDAG/EmberDAG/internal/tangle"
	"github.com/CrossDAG/EmberDAG/internal/types"
)

var (
	ErrServiceAlreadyRunning = errors.New("service is already running")
	ErrPeerNotFound          = errors.New("peer address not known")
	ErrNoPeers               = errors.New("no active peers")
)

// maxPeersInResponse bounds the peer list returned for a peers request.
const maxPeersInResponse = 10

// Config represents the network service configuration.
type Config struct {
	ListenAddr  string
	Services    []string
	DialTimeout time.Duration
}

// Service represents the TCP exchange layer: it serves ping/pong
// verification, peer discovery queries and message relay/requests, and
// acts as the verification and discovery client for the peering engine.
type Service struct {
	config    Config
	id        peer.ID
	registry  *peering.Registry
	book      *AddressBook
	processor *gossip.Processor
	tangle    *tangle.Tangle
	logger    *log.Logger

	listener net.Listener
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewService creates a new network service.
func NewService(config Config, id peer.ID, registry *peering.Registry, book *AddressBook, processor *gossip.Processor, tg *tangle.Tangle) *Service {
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}
	return &Service{
		config:    config,
		id:        id,
		registry:  registry,
		book:      book,
		processor: processor,
		tangle:    tg,
		logger:    log.New(log.Writer(), "[Network] ", log.LstdFlags),
	}
}

// Start starts listening for peer connections.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrServiceAlreadyRunning
	}

	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to start listener: %v", err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.acceptConnections()

	s.running = true
	s.logger.Printf("listening on %s", listener.Addr())
	return nil
}

// Stop stops the listener and waits for in-flight exchanges.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()
	if err := s.listener.Close(); err != nil {
		s.logger.Printf("failed to close listener: %v", err)
	}
	s.wg.Wait()
	s.running = false
	return nil
}

// Addr returns the bound listen address.
func (s *Service) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return s.config.ListenAddr
	}
	return s.listener.Addr().String()
}

// acceptConnections accepts incoming connections.
func (s *Service) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Printf("failed to accept connection: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection reads one packet from a peer and handles it.
func (s *Service) handleConnection(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(s.config.DialTimeout))

	var pkt packet
	if err := json.NewDecoder(conn).Decode(&pkt); err != nil {
		s.logger.Printf("failed to decode packet from %s: %v", conn.RemoteAddr(), err)
		return
	}

	from := peer.ID(pkt.ID)
	s.book.SetAddr(from, pkt.Addr)

	switch pkt.Kind {
	case packetPing:
		s.handlePing(conn)
	case packetPeersRequest:
		s.handlePeersRequest(conn, from)
	case packetMessage:
		s.handleMessage(pkt, from)
	case packetMessageRequest:
		s.handleMessageRequest(conn, pkt)
	default:
		s.logger.Printf("unknown packet kind %q from %s", pkt.Kind, conn.RemoteAddr())
	}
}

// handlePing answers a verification handshake.
func (s *Service) handlePing(conn net.Conn) {
	pong := packet{
		Kind:     packetPong,
		ID:       string(s.id),
		Addr:     s.Addr(),
		Services: s.config.Services,
	}
	if err := json.NewEncoder(conn).Encode(&pong); err != nil {
		s.logger.Printf("failed to send pong: %v", err)
	}
}

// handlePeersRequest answers a discovery query with known peers.
func (s *Service) handlePeersRequest(conn net.Conn, from peer.ID) {
	resp := packet{
		Kind:  packetPeersResponse,
		ID:    string(s.id),
		Peers: s.book.Sample(maxPeersInResponse, from),
	}
	if err := json.NewEncoder(conn).Encode(&resp); err != nil {
		s.logger.Printf("failed to send peers response: %v", err)
	}
}

// handleMessage feeds a relayed message into the ingestion pipeline.
func (s *Service) handleMessage(pkt packet, from peer.ID) {
	if err := s.processor.SubmitFromPeer(pkt.Raw, from, pow.Score(pkt.Raw)); err != nil {
		s.logger.Printf("failed to ingest message from %s: %v", from.ShortString(), err)
	}
}

// handleMessageRequest answers a message request from the tangle. Unknown
// messages get an empty response.
func (s *Service) handleMessageRequest(conn net.Conn, pkt packet) {
	resp := packet{Kind: packetMessageResponse, ID: string(s.id)}

	if id, err := types.MessageIDFromHex(pkt.MessageID); err == nil {
		if msg, ok := s.tangle.Get(id); ok {
			if raw, err := types.EncodeMessage(msg); err == nil {
				resp.Raw = raw
			}
		}
	}

	if err := json.NewEncoder(conn).Encode(&resp); err != nil {
		s.logger.Printf("failed to send message response: %v", err)
	}
}

// Verify performs the ping/pong handshake with a peer and returns its
// advertised services. Implements the peering verification contract. The
// pong response path bumps the peer's recency in the registry.
func (s *Service) Verify(ctx context.Context, id peer.ID) ([]string, error) {
	addr, ok := s.book.Addr(id)
	if !ok {
		return nil, ErrPeerNotFound
	}

	ping := packet{Kind: packetPing, ID: string(s.id), Addr: s.Addr()}
	pong, err := s.exchange(ctx, addr, &ping)
	if err != nil {
		return nil, fmt.Errorf("failed to verify peer: %v", err)
	}
	if pong.Kind != packetPong || peer.ID(pong.ID) != id {
		return nil, fmt.Errorf("unexpected pong from %s", addr)
	}

	s.onPong(id, pong.Addr)
	return pong.Services, nil
}

// onPong records a successful handshake response: the peer's recency and
// verification counter are bumped, or the peer enters the active list.
func (s *Service) onPong(id peer.ID, addr string) {
	s.book.SetAddr(id, addr)
	if !s.registry.BumpVerified(id) {
		s.registry.Insert(&peering.ActivePeer{ID: id, Addr: addr, VerifiedCount: 1})
	}
}

// Query asks a peer for the peers it knows and merges unseen addresses
// into the address book. It returns the number of newly learned peers.
// Implements the peering discovery contract.
func (s *Service) Query(ctx context.Context, id peer.ID) (int, error) {
	addr, ok := s.book.Addr(id)
	if !ok {
		return 0, ErrPeerNotFound
	}

	req := packet{Kind: packetPeersRequest, ID: string(s.id), Addr: s.Addr()}
	resp, err := s.exchange(ctx, addr, &req)
	if err != nil {
		return 0, fmt.Errorf("failed to query peer: %v", err)
	}
	if resp.Kind != packetPeersResponse {
		return 0, fmt.Errorf("unexpected response kind %q from %s", resp.Kind, addr)
	}

	newPeers := 0
	for _, entry := range resp.Peers {
		entryID := peer.ID(entry.ID)
		if entryID == s.id || s.book.Has(entryID) {
			continue
		}
		s.book.SetAddr(entryID, entry.Addr)
		newPeers++
	}
	return newPeers, nil
}

// Broadcast relays a raw message to every active peer except the one it
// came from.
func (s *Service) Broadcast(raw []byte, except peer.ID) {
	for _, p := range s.registry.ActivePeers() {
		if p.ID == except {
			continue
		}
		id := p.ID
		go func() {
			if err := s.sendMessage(id, raw); err != nil {
				s.logger.Printf("failed to relay message to %s: %v", id.ShortString(), err)
			}
		}()
	}
}

// sendMessage delivers one raw message to a peer, fire-and-forget.
func (s *Service) sendMessage(id peer.ID, raw []byte) error {
	addr, ok := s.book.Addr(id)
	if !ok {
		return ErrPeerNotFound
	}

	conn, err := net.DialTimeout("tcp", addr, s.config.DialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(s.config.DialTimeout))

	pkt := packet{Kind: packetMessage, ID: string(s.id), Addr: s.Addr(), Raw: raw}
	return json.NewEncoder(conn).Encode(&pkt)
}

// RequestMessage asks a random active peer for a message. A non-empty
// response is fed straight into the ingestion pipeline.
func (s *Service) RequestMessage(id types.MessageID, index uint32) error {
	peers := s.registry.ActivePeers()
	if len(peers) == 0 {
		return ErrNoPeers
	}
	target := peers[rand.Intn(len(peers))]

	addr, ok := s.book.Addr(target.ID)
	if !ok {
		return ErrPeerNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.DialTimeout)
	defer cancel()

	req := packet{Kind: packetMessageRequest, ID: string(s.id), Addr: s.Addr(), MessageID: id.Hex()}
	resp, err := s.exchange(ctx, addr, &req)
	if err != nil {
		return fmt.Errorf("failed to request message: %v", err)
	}
	if len(resp.Raw) == 0 {
		return nil
	}
	return s.processor.SubmitFromPeer(resp.Raw, target.ID, pow.Score(resp.Raw))
}

// exchange dials a peer, sends one packet and reads one response.
func (s *Service) exchange(ctx context.Context, addr string, req *packet) (*packet, error) {
	dialer := net.Dialer{Timeout: s.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(s.config.DialTimeout))
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, err
	}

	var resp packet
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
