package gossip

import (
	"testing"

	"github.com/CrossDAG/EmberDAG/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestedMessages(t *testing.T) {
	r := NewRequestedMessages()
	id := types.MessageID{1}

	assert.False(t, r.Has(id))
	assert.True(t, r.Put(id, 7))
	assert.True(t, r.Has(id))
	assert.Equal(t, 1, r.Len())

	// A second put for the same message is rejected.
	assert.False(t, r.Put(id, 9))

	details, ok := r.Remove(id)
	require.True(t, ok)
	assert.Equal(t, uint32(7), details.Index)
	assert.False(t, details.RequestedAt.IsZero())

	// The entry is removed exactly once.
	_, ok = r.Remove(id)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}
