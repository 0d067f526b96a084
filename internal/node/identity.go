package node

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// LoadOrCreateIdentity reads the node's private key from disk, generating
// and persisting a fresh ed25519 key on first start.
func LoadOrCreateIdentity(path string) (crypto.PrivKey, peer.ID, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		priv, err := crypto.UnmarshalPrivateKey(data)
		if err != nil {
			return nil, "", fmt.Errorf("failed to unmarshal identity key: %v", err)
		}
		id, err := peer.IDFromPrivateKey(priv)
		if err != nil {
			return nil, "", fmt.Errorf("failed to derive peer id: %v", err)
		}
		return priv, id, nil
	}
	if !os.IsNotExist(err) {
		return nil, "", fmt.Errorf("failed to read identity key: %v", err)
	}

	priv, _, err := crypto.GenerateKeyPair(crypto.Ed25519, -1)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate identity key: %v", err)
	}

	raw, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal identity key: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create identity directory: %v", err)
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return nil, "", fmt.Errorf("failed to write identity key: %v", err)
	}

	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, "", fmt.Errorf("failed to derive peer id: %v", err)
	}
	return priv, id, nil
}
