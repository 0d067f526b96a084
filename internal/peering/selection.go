package peering

import (
	"math/rand"

	"github.com/libp2p/go-libp2p/core/peer"
)

// queryTopK is the number of historically most productive peers considered
// for the second query slot.
const queryTopK = 3

// selectPeersToQuery computes the peers to send a discovery query to.
// With fewer than three verified peers every one of them is a candidate.
// Otherwise the most recently verified peer is always picked, plus one peer
// chosen uniformly at random among the up to three remaining peers with the
// greatest last-new-peers metric: keep information flowing with the
// freshest peer while exploiting the historically most productive ones.
func selectPeersToQuery(verified []*ActivePeer) []peer.ID {
	if len(verified) < queryTopK {
		ids := make([]peer.ID, 0, len(verified))
		for _, p := range verified {
			ids = append(ids, p.ID)
		}
		return ids
	}

	latest := verified[0]

	tracker := newTopK(queryTopK)
	for _, p := range verified[1:] {
		tracker.Offer(p.ID, p.LastNewPeers)
	}
	picked := tracker.Entries()[rand.Intn(tracker.Len())]

	return []peer.ID{latest.ID, picked}
}

// topK tracks the k peers with the greatest metric seen so far. Only a
// strictly greater metric displaces the current minimum, so the
// first-seen peer wins a tie regardless of iteration order.
type topK struct {
	k       int
	ids     []peer.ID
	metrics []int
}

func newTopK(k int) *topK {
	return &topK{k: k}
}

// Offer presents a candidate to the tracker.
func (t *topK) Offer(id peer.ID, metric int) {
	if len(t.ids) < t.k {
		t.ids = append(t.ids, id)
		t.metrics = append(t.metrics, metric)
		return
	}

	min := 0
	for i := 1; i < len(t.metrics); i++ {
		if t.metrics[i] < t.metrics[min] {
			min = i
		}
	}
	if metric > t.metrics[min] {
		t.ids[min] = id
		t.metrics[min] = metric
	}
}

// Entries returns the tracked peer IDs.
func (t *topK) Entries() []peer.ID {
	return t.ids
}

// Len returns the number of tracked peers.
func (t *topK) Len() int {
	return len(t.ids)
}
