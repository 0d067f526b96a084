package peering

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Default capacities of the active list and the replacement pool.
const (
	DefaultMaxActive       = 1000
	DefaultMaxReplacements = 10
)

// Registry represents the node's bounded, ordered collections of peers:
// the active list (front = most recently verified), the entry list of
// bootstrap peers, and the replacement pool of demoted peers. A peer ID
// occurs at most once across the three lists.
type Registry struct {
	mu              sync.RWMutex
	active          []*ActivePeer
	entry           []*EntryPeer
	replacements    []*ActivePeer
	maxActive       int
	maxReplacements int
}

// NewRegistry creates a new registry with the given capacities. Zero or
// negative capacities fall back to the defaults.
func NewRegistry(maxActive, maxReplacements int) *Registry {
	if maxActive <= 0 {
		maxActive = DefaultMaxActive
	}
	if maxReplacements <= 0 {
		maxReplacements = DefaultMaxReplacements
	}
	return &Registry{
		maxActive:       maxActive,
		maxReplacements: maxReplacements,
	}
}

// Insert adds a peer to the front of the active list. Any previous entry
// for the same ID in any list is removed first. When the active list is at
// capacity the oldest entry is dropped silently.
func (r *Registry) Insert(p *ActivePeer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(p.ID)
	r.active = append([]*ActivePeer{p}, r.active...)
	if len(r.active) > r.maxActive {
		r.active = r.active[:r.maxActive]
	}
}

// Remove deletes a peer from the active list and returns it.
func (r *Registry) Remove(id peer.ID) (*ActivePeer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeActiveLocked(id)
}

// Demote moves a peer from the active list to the replacement pool as one
// logical operation. When the pool is full its oldest entry is dropped
// silently. It reports whether the peer was present in the active list.
func (r *Registry) Demote(id peer.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.removeActiveLocked(id)
	if !ok {
		return false
	}

	r.replacements = append(r.replacements, p)
	if len(r.replacements) > r.maxReplacements {
		r.replacements = r.replacements[1:]
	}
	return true
}

// Oldest returns the ID of the least recently verified active peer.
func (r *Registry) Oldest() (peer.ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.active) == 0 {
		return "", false
	}
	return r.active[len(r.active)-1].ID, true
}

// VerifiedPeers returns copies of the active peers with at least one
// successful verification, in list order (most recently verified first).
func (r *Registry) VerifiedPeers() []*ActivePeer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	verified := make([]*ActivePeer, 0, len(r.active))
	for _, p := range r.active {
		if p.VerifiedCount >= 1 {
			clone := *p
			verified = append(verified, &clone)
		}
	}
	return verified
}

// BumpVerified moves a peer to the front of the active list and increments
// its verification counter. Invoked by the handshake response path.
func (r *Registry) BumpVerified(id peer.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.removeActiveLocked(id)
	if !ok {
		return false
	}
	p.VerifiedCount++
	r.active = append([]*ActivePeer{p}, r.active...)
	return true
}

// SetLastNewPeers records the new-peer count from a peer's most recent
// discovery query response.
func (r *Registry) SetLastNewPeers(id peer.ID, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.active {
		if p.ID == id {
			p.LastNewPeers = n
			return
		}
	}
}

// RotateForwards moves the oldest active peer to the front of the list.
// Used by tests to simulate time passing.
func (r *Registry) RotateForwards() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.active) < 2 {
		return
	}
	last := r.active[len(r.active)-1]
	r.active = append([]*ActivePeer{last}, r.active[:len(r.active)-1]...)
}

// Get returns the active peer at position i (front = 0).
func (r *Registry) Get(i int) (*ActivePeer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i < 0 || i >= len(r.active) {
		return nil, false
	}
	clone := *r.active[i]
	return &clone, true
}

// Len returns the number of active peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.active)
}

// ReplacementLen returns the number of peers in the replacement pool.
func (r *Registry) ReplacementLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.replacements)
}

// InReplacements reports whether a peer is in the replacement pool.
func (r *Registry) InReplacements(id peer.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.replacements {
		if p.ID == id {
			return true
		}
	}
	return false
}

// AddEntry adds a bootstrap peer to the entry list. Entry peers already
// present in another list are left where they are.
func (r *Registry) AddEntry(id peer.ID, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.containsLocked(id) {
		return
	}
	r.entry = append(r.entry, &EntryPeer{ID: id, Addr: addr})
}

// EntryPeers returns copies of the bootstrap peers.
func (r *Registry) EntryPeers() []*EntryPeer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*EntryPeer, 0, len(r.entry))
	for _, p := range r.entry {
		clone := *p
		entries = append(entries, &clone)
	}
	return entries
}

// ActivePeers returns copies of all active peers in list order.
func (r *Registry) ActivePeers() []*ActivePeer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]*ActivePeer, 0, len(r.active))
	for _, p := range r.active {
		clone := *p
		peers = append(peers, &clone)
	}
	return peers
}

// ReplacementPeers returns copies of the replacement pool in age order.
func (r *Registry) ReplacementPeers() []*ActivePeer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]*ActivePeer, 0, len(r.replacements))
	for _, p := range r.replacements {
		clone := *p
		peers = append(peers, &clone)
	}
	return peers
}

// removeActiveLocked removes a peer from the active list only.
func (r *Registry) removeActiveLocked(id peer.ID) (*ActivePeer, bool) {
	for i, p := range r.active {
		if p.ID == id {
			r.active = append(r.active[:i], r.active[i+1:]...)
			return p, true
		}
	}
	return nil, false
}

// removeLocked removes a peer from every list.
func (r *Registry) removeLocked(id peer.ID) {
	r.removeActiveLocked(id)
	for i, p := range r.entry {
		if p.ID == id {
			r.entry = append(r.entry[:i], r.entry[i+1:]...)
			break
		}
	}
	for i, p := range r.replacements {
		if p.ID == id {
			r.replacements = append(r.replacements[:i], r.replacements[i+1:]...)
			break
		}
	}
}

// containsLocked reports whether a peer ID is present in any list.
func (r *Registry) containsLocked(id peer.ID) bool {
	for _, p := range r.active {
		if p.ID == id {
			return true
		}
	}
	for _, p := range r.entry {
		if p.ID == id {
			return true
		}
	}
	for _, p := range r.replacements {
		if p.ID == id {
			return true
		}
	}
	return false
}
