package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CrossDAG/EmberDAG/internal/config"
	"github.com/CrossDAG/EmberDAG/internal/node"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "emberdag",
		Short: "EmberDAG node: autopeering and message gossip for the tangle",
	}
	rootCmd.AddCommand(newRunCommand(), newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newRunCommand builds the command that runs a node until interrupted.
func newRunCommand() *cobra.Command {
	var configPath string
	var dataDir string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}

			n, err := node.NewNode(cfg)
			if err != nil {
				return fmt.Errorf("failed to create node: %v", err)
			}
			if err := n.Start(); err != nil {
				return fmt.Errorf("failed to start node: %v", err)
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan

			log.Printf("shutting down")
			return n.Stop()
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the configuration file")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "override the data directory")
	return cmd
}

// newVersionCommand builds the command printing the node version.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the node version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("emberdag %s\n", version)
		},
	}
}

// loadConfig loads the configuration file or falls back to defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}
