package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadPeers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers", "peers.json")

	records := []PeerRecord{
		{ID: "peer-a", Addr: "127.0.0.1:15600", VerifiedCount: 3, LastNewPeers: 2},
		{ID: "peer-b", Addr: "127.0.0.1:15601"},
	}
	require.NoError(t, SavePeers(path, records))

	loaded, err := LoadPeers(path)
	require.NoError(t, err)
	assert.Equal(t, records, loaded)
}

func TestLoadPeers_Missing(t *testing.T) {
	loaded, err := LoadPeers(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
