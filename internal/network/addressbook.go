package network

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

// AddressBook represents the node's mapping from peer IDs to dialable
// addresses, together with per-peer duplicate-message counters.
type AddressBook struct {
	mu            sync.RWMutex
	addrs         map[peer.ID]string
	knownMessages map[peer.ID]uint64
}

// NewAddressBook creates an empty address book.
func NewAddressBook() *AddressBook {
	return &AddressBook{
		addrs:         make(map[peer.ID]string),
		knownMessages: make(map[peer.ID]uint64),
	}
}

// SetAddr records the address of a peer. Empty addresses are ignored.
func (b *AddressBook) SetAddr(id peer.ID, addr string) {
	if addr == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.addrs[id] = addr
}

// Addr returns the recorded address of a peer.
func (b *AddressBook) Addr(id peer.ID) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	addr, exists := b.addrs[id]
	return addr, exists
}

// Has reports whether an address is recorded for a peer.
func (b *AddressBook) Has(id peer.ID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.addrs[id]
	return exists
}

// Sample returns up to n known peers, excluding the given peer.
func (b *AddressBook) Sample(n int, exclude peer.ID) []peerEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries := make([]peerEntry, 0, n)
	for id, addr := range b.addrs {
		if id == exclude {
			continue
		}
		entries = append(entries, peerEntry{ID: string(id), Addr: addr})
		if len(entries) == n {
			break
		}
	}
	return entries
}

// IncKnownMessages bumps the duplicate-message counter of a peer.
func (b *AddressBook) IncKnownMessages(id peer.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.knownMessages[id]++
}

// KnownMessages returns the duplicate-message counter of a peer.
func (b *AddressBook) KnownMessages(id peer.ID) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.knownMessages[id]
}

// Len returns the number of recorded addresses.
func (b *AddressBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.addrs)
}
