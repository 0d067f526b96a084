package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config represents the application configuration.
type Config struct {
	DataDir string        `yaml:"data_dir"`
	Network NetworkConfig `yaml:"network"`
	Peering PeeringConfig `yaml:"peering"`
	Gossip  GossipConfig  `yaml:"gossip"`
	API     APIConfig     `yaml:"api"`
}

// NetworkConfig represents the network identity and exchange configuration.
type NetworkConfig struct {
	Name       string      `yaml:"name"`
	ListenAddr string      `yaml:"listen_addr"`
	EntryPeers []EntryPeer `yaml:"entry_peers"`
}

// EntryPeer represents one configured bootstrap peer.
type EntryPeer struct {
	ID   string `yaml:"id"`
	Addr string `yaml:"addr"`
}

// PeeringConfig represents the autopeering configuration.
type PeeringConfig struct {
	MaxActive        int           `yaml:"max_active"`
	MaxReplacements  int           `yaml:"max_replacements"`
	ReverifyInterval time.Duration `yaml:"reverify_interval"`
	QueryInterval    time.Duration `yaml:"query_interval"`
	TaskTimeout      time.Duration `yaml:"task_timeout"`
	MaxInflight      int           `yaml:"max_inflight"`
}

// GossipConfig represents the message ingestion configuration.
type GossipConfig struct {
	MinPoWScore float64 `yaml:"min_pow_score"`
}

// APIConfig represents the HTTP API configuration.
type APIConfig struct {
	BindAddr string `yaml:"bind_addr"`
}

// DefaultConfig returns a configuration with sane defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Network: NetworkConfig{
			Name:       "ember-mainnet",
			ListenAddr: "0.0.0.0:15600",
		},
		Peering: PeeringConfig{
			MaxActive:        1000,
			MaxReplacements:  10,
			ReverifyInterval: 10 * time.Second,
			QueryInterval:    60 * time.Second,
			TaskTimeout:      30 * time.Second,
		},
		Gossip: GossipConfig{
			MinPoWScore: 0.001,
		},
		API: APIConfig{
			BindAddr: "127.0.0.1:14265",
		},
	}
}

// LoadConfig loads the configuration from a file, applying defaults for
// missing fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Network.Name == "" {
		return fmt.Errorf("network name must not be empty")
	}
	if c.Network.ListenAddr == "" {
		return fmt.Errorf("network listen address must not be empty")
	}
	if c.Gossip.MinPoWScore < 0 {
		return fmt.Errorf("minimum proof of work score must not be negative")
	}
	for _, p := range c.Network.EntryPeers {
		if p.ID == "" || p.Addr == "" {
			return fmt.Errorf("entry peers need both id and addr")
		}
	}
	return nil
}
