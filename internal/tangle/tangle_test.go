package tangle

import (
	"testing"
	"time"

	"github.com/CrossDAG/EmberDAG/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMessage(parent1, parent2 types.MessageID) (*types.Message, types.MessageID) {
	msg := &types.Message{
		NetworkID: 1,
		Parent1:   parent1,
		Parent2:   parent2,
	}
	raw, _ := types.EncodeMessage(msg)
	return msg, types.ComputeMessageID(raw)
}

func TestTangle_Insert(t *testing.T) {
	tg := New()
	msg, id := newTestMessage(types.MessageID{1}, types.MessageID{2})
	meta := &types.MessageMetadata{ArrivedAt: time.Now()}

	stored, inserted := tg.Insert(msg, id, meta)
	require.True(t, inserted)
	assert.Equal(t, msg, stored)
	assert.Equal(t, 1, tg.MessageCount())

	got, exists := tg.Get(id)
	require.True(t, exists)
	assert.Equal(t, msg, got)

	gotMeta, exists := tg.Metadata(id)
	require.True(t, exists)
	assert.Equal(t, meta, gotMeta)
}

func TestTangle_InsertDuplicate(t *testing.T) {
	tg := New()
	msg, id := newTestMessage(types.MessageID{1}, types.MessageID{2})
	meta := &types.MessageMetadata{ArrivedAt: time.Now()}

	_, inserted := tg.Insert(msg, id, meta)
	require.True(t, inserted)

	// A second insert must leave the stored entry untouched.
	other := &types.Message{NetworkID: 99}
	stored, inserted := tg.Insert(other, id, &types.MessageMetadata{Requested: true})
	assert.False(t, inserted)
	assert.Nil(t, stored)

	got, _ := tg.Get(id)
	assert.Equal(t, msg, got)
	gotMeta, _ := tg.Metadata(id)
	assert.Equal(t, meta, gotMeta)
}

func TestTangle_ChildrenAndTips(t *testing.T) {
	tg := New()

	parent, parentID := newTestMessage(types.MessageID{0xaa}, types.MessageID{0xbb})
	tg.Insert(parent, parentID, &types.MessageMetadata{})
	assert.Contains(t, tg.Tips(), parentID)

	child, childID := newTestMessage(parentID, parentID)
	tg.Insert(child, childID, &types.MessageMetadata{})

	// Identical parents are linked once.
	assert.Equal(t, []types.MessageID{childID}, tg.Children(parentID))
	assert.NotContains(t, tg.Tips(), parentID)
	assert.Contains(t, tg.Tips(), childID)
	assert.True(t, tg.Contains(childID))
}
