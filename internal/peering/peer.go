package peering

import "github.com/libp2p/go-libp2p/core/peer"

// ActivePeer represents a verified peer in the active list.
type ActivePeer struct {
	ID            peer.ID
	Addr          string
	VerifiedCount int
	LastNewPeers  int
}

// EntryPeer represents a bootstrap peer. Entry peers are never demoted by
// the discovery engine.
type EntryPeer struct {
	ID   peer.ID
	Addr string
}
