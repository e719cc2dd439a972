package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chime-experiment/alpenhorn-chime/internal/seed"
)

var updateTypesCmd = &cobra.Command{
	Use:   "update-types",
	Short: "Create or update the CHIME acquisition and file types",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := seed.UpdateTypes(context.Background(), store); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "acquisition and file types updated")
		return nil
	},
}

var updateInstCmd = &cobra.Command{
	Use:   "update-inst",
	Short: "Add the known CHIME instruments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := seed.UpdateInst(context.Background(), store)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d instruments added\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateTypesCmd, updateInstCmd)
}
