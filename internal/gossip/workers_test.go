package gossip

import (
	"sync"
	"testing"
	"time"

	"github.com/CrossDAG/EmberDAG/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropagator_DrainsOnStop(t *testing.T) {
	var mu sync.Mutex
	var seen []types.MessageID

	p := NewPropagator(func(id types.MessageID) {
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
	})
	require.NoError(t, p.Start())

	ids := []types.MessageID{{1}, {2}, {3}}
	for _, id := range ids {
		require.NoError(t, p.Submit(id))
	}
	require.NoError(t, p.Stop())

	assert.Equal(t, ids, seen)
	assert.Error(t, p.Submit(types.MessageID{4}))
}

func TestBroadcaster_SubmitAfterStop(t *testing.T) {
	b := NewBroadcaster(func(BroadcastItem) {})
	require.NoError(t, b.Start())
	require.NoError(t, b.Stop())

	assert.Error(t, b.Submit(BroadcastItem{Raw: []byte("raw")}))
}

func TestMilestoneValidator_Handles(t *testing.T) {
	received := make(chan types.MessageID, 1)
	m := NewMilestoneValidator(func(id types.MessageID) {
		received <- id
	})
	require.NoError(t, m.Start())
	defer m.Stop()

	require.NoError(t, m.Submit(types.MessageID{9}))

	select {
	case id := <-received:
		assert.Equal(t, types.MessageID{9}, id)
	case <-time.After(time.Second):
		t.Fatal("milestone not handled")
	}
}

func TestRequester_SuppressesDuplicates(t *testing.T) {
	requested := NewRequestedMessages()
	stored := map[types.MessageID]bool{{0xaa}: true}

	var mu sync.Mutex
	var sent []types.MessageID
	r := NewRequester(requested,
		func(id types.MessageID) bool { return stored[id] },
		func(id types.MessageID, index uint32) {
			mu.Lock()
			sent = append(sent, id)
			mu.Unlock()
		})
	require.NoError(t, r.Start())

	// Already stored: suppressed.
	r.Request(types.MessageID{0xaa}, 1)
	// New: transmitted once, the repeat is suppressed.
	r.Request(types.MessageID{0xbb}, 1)
	r.Request(types.MessageID{0xbb}, 2)

	require.NoError(t, r.Stop())

	assert.Equal(t, []types.MessageID{{0xbb}}, sent)
	assert.True(t, requested.Has(types.MessageID{0xbb}))
	assert.False(t, requested.Has(types.MessageID{0xaa}))
}
