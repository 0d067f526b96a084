package tangle

import (
	"sync"

	"github.com/CrossDAG/EmberDAG/internal/types"
)

// vertex holds a stored message together with its metadata.
type vertex struct {
	message  *types.Message
	metadata *types.MessageMetadata
}

// Tangle represents the in-memory DAG store of messages.
type Tangle struct {
	mu       sync.RWMutex
	vertices map[types.MessageID]*vertex
	children map[types.MessageID][]types.MessageID
	tips     map[types.MessageID]struct{}
}

// New creates a new empty tangle.
func New() *Tangle {
	return &Tangle{
		vertices: make(map[types.MessageID]*vertex),
		children: make(map[types.MessageID][]types.MessageID),
		tips:     make(map[types.MessageID]struct{}),
	}
}

// Insert stores a message if its identifier is not yet present. It returns
// the stored message and true on first insertion, or nil and false when the
// identifier is already known; an existing entry is never touched. This is
// the single source of exactly-once acceptance.
func (t *Tangle) Insert(msg *types.Message, id types.MessageID, meta *types.MessageMetadata) (*types.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.vertices[id]; exists {
		return nil, false
	}

	t.vertices[id] = &vertex{message: msg, metadata: meta}

	parents := []types.MessageID{msg.Parent1}
	if msg.Parent2 != msg.Parent1 {
		parents = append(parents, msg.Parent2)
	}
	for _, parent := range parents {
		t.children[parent] = append(t.children[parent], id)
		delete(t.tips, parent)
	}

	if len(t.children[id]) == 0 {
		t.tips[id] = struct{}{}
	}

	return msg, true
}

// Get retrieves a message by its identifier.
func (t *Tangle) Get(id types.MessageID) (*types.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, exists := t.vertices[id]
	if !exists {
		return nil, false
	}
	return v.message, true
}

// Metadata retrieves the metadata of a stored message.
func (t *Tangle) Metadata(id types.MessageID) (*types.MessageMetadata, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, exists := t.vertices[id]
	if !exists {
		return nil, false
	}
	return v.metadata, true
}

// Contains reports whether a message identifier is stored.
func (t *Tangle) Contains(id types.MessageID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, exists := t.vertices[id]
	return exists
}

// MessageCount returns the number of stored messages.
func (t *Tangle) MessageCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.vertices)
}

// Tips returns the identifiers of all messages without children.
func (t *Tangle) Tips() []types.MessageID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tips := make([]types.MessageID, 0, len(t.tips))
	for tip := range t.tips {
		tips = append(tips, tip)
	}
	return tips
}

// Children returns the identifiers of all stored children of a message.
func (t *Tangle) Children(id types.MessageID) []types.MessageID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return append([]types.MessageID(nil), t.children[id]...)
}
