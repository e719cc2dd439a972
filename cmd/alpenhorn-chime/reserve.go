package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chime-experiment/alpenhorn-chime/internal/duckdb"
	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

var releaseReservation bool

// reserveFiles adds, or with release removes, the tag's reservation of each
// file on the node.
func reserveFiles(ctx context.Context, store *duckdb.Store, tag, nodeName string, paths []string, release bool) error {
	return store.Atomic(ctx, func(tx *duckdb.Store) error {
		t, err := tx.GetOrCreateTag(ctx, tag, "")
		if err != nil {
			return err
		}
		node, err := tx.NodeByName(ctx, nodeName)
		if err != nil {
			return fmt.Errorf("node %s: %w", nodeName, err)
		}
		for _, p := range paths {
			f, err := tx.FileByPath(ctx, p)
			if err != nil {
				return fmt.Errorf("file %s: %w", p, err)
			}
			r := model.Reservation{TagID: t.ID, FileID: f.ID, NodeID: node.ID}
			if release {
				err = tx.Release(ctx, r)
			} else {
				err = tx.Reserve(ctx, r)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

var reserveCmd = &cobra.Command{
	Use:   "reserve <tag> <node> <file-path>...",
	Short: "Reserve files on a node so they are kept there",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := reserveFiles(context.Background(), store, args[0], args[1], args[2:], releaseReservation); err != nil {
			return err
		}
		verb := "reserved"
		if releaseReservation {
			verb = "released"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d files %s for %s on %s\n", len(args)-2, verb, args[0], args[1])
		return nil
	},
}

func init() {
	reserveCmd.Flags().BoolVar(&releaseReservation, "release", false, "remove the reservations instead")
	rootCmd.AddCommand(reserveCmd)
}
