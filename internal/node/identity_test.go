package node

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "identity.key")

	priv, id, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)
	require.NotNil(t, priv)
	require.NotEmpty(t, id)

	// A second load returns the same identity.
	_, again, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}
