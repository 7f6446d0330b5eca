package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/groblegark/relay/internal/client"
)

var (
	serverURL   string
	relayClient *client.Client
)

// fileConfig is the optional CLI config file at ~/.config/relay/config.toml.
type fileConfig struct {
	Server string `toml:"server"`
}

// loadFileConfig reads the CLI config file if present. A missing file is not
// an error; a malformed one is.
func loadFileConfig() (*fileConfig, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return &fileConfig{}, nil
	}
	path := filepath.Join(home, ".config", "relay", "config.toml")

	var cfg fileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return &fileConfig{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &cfg, nil
}

func defaultServer() string {
	if s := os.Getenv("RELAY_SERVER"); s != "" {
		return s
	}
	if cfg, err := loadFileConfig(); err == nil && cfg.Server != "" {
		return cfg.Server
	}
	return "http://localhost:8080"
}

var rootCmd = &cobra.Command{
	Use:   "relay <command>",
	Short: "Publish/subscribe notification relay",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		relayClient = client.New(serverURL)
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer(),
		"relay server base URL (also RELAY_SERVER or ~/.config/relay/config.toml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(watchCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
