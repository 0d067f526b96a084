package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PeerRecord represents one persisted peer.
type PeerRecord struct {
	ID            string `json:"id"`
	Addr          string `json:"addr"`
	VerifiedCount int    `json:"verifiedCount"`
	LastNewPeers  int    `json:"lastNewPeers"`
}

// SavePeers writes a peer-list snapshot to disk.
func SavePeers(path string, records []PeerRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %v", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal peers: %v", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to save peers: %v", err)
	}
	return nil
}

// LoadPeers reads a peer-list snapshot from disk. A missing file yields an
// empty list.
func LoadPeers(path string) ([]PeerRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []PeerRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read peers file: %v", err)
	}

	var records []PeerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal peers: %v", err)
	}
	return records, nil
}
