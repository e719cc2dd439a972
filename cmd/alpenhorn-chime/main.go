package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chime-experiment/alpenhorn-chime/internal/log"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

var (
	configPath string
	cfg        appConfig
)

var rootCmd = &cobra.Command{
	Use:   "alpenhorn-chime",
	Short: "CHIME extensions for the alpenhorn data archive",
	Long: `alpenhorn-chime manages the CHIME data archive catalog: it recognises
CHIME acquisitions and files on storage nodes, records their metadata,
and moves copies between nodes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		log.Configure(log.Config{Level: cfg.LogLevel, Version: version})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/alpenhorn-chime/config.yml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
