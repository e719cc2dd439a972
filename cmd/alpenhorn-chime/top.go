package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chime-experiment/alpenhorn-chime/internal/tui"
)

var topInterval time.Duration

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Live view of the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := dialDaemon(cfg)
		if client == nil {
			return fmt.Errorf("no daemon listening on %s", cfg.ControlSocket)
		}
		defer client.Close()
		return tui.Run(client, topInterval)
	},
}

func init() {
	topCmd.Flags().DurationVarP(&topInterval, "interval", "i", 2*time.Second, "refresh interval")
	rootCmd.AddCommand(topCmd)
}
