package peering

import "github.com/libp2p/go-libp2p/core/peer"

// EventKind identifies a peering event.
type EventKind int

const (
	// EventPeerRemoved signals that a peer was demoted out of the active
	// list after a verification or query failure.
	EventPeerRemoved EventKind = iota
)

// Event represents a peering state change consumed by higher-level node
// logic.
type Event struct {
	Kind   EventKind
	Peer   peer.ID
	Reason string
}
