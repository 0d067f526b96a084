package gossip

import (
	"sync"
	"time"

	"github.com/CrossDAG/EmberDAG/internal/types"
)

// RequestDetails represents the bookkeeping of one outstanding message
// request.
type RequestDetails struct {
	Index       uint32
	RequestedAt time.Time
}

// RequestedMessages represents the shared map of outstanding message
// requests. An entry is removed exactly once, precisely when its message
// is newly accepted into the tangle.
type RequestedMessages struct {
	mu       sync.RWMutex
	requests map[types.MessageID]RequestDetails
}

// NewRequestedMessages creates an empty request tracker.
func NewRequestedMessages() *RequestedMessages {
	return &RequestedMessages{
		requests: make(map[types.MessageID]RequestDetails),
	}
}

// Put records an outstanding request. It reports false when the message is
// already tracked.
func (r *RequestedMessages) Put(id types.MessageID, index uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.requests[id]; exists {
		return false
	}
	r.requests[id] = RequestDetails{Index: index, RequestedAt: time.Now()}
	return true
}

// Has reports whether a request for the message is outstanding.
func (r *RequestedMessages) Has(id types.MessageID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.requests[id]
	return exists
}

// Remove deletes and returns the request entry for a message.
func (r *RequestedMessages) Remove(id types.MessageID) (RequestDetails, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	details, exists := r.requests[id]
	if exists {
		delete(r.requests, id)
	}
	return details, exists
}

// Len returns the number of outstanding requests.
func (r *RequestedMessages) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.requests)
}
