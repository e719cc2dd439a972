package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chime-experiment/alpenhorn-chime/internal/importer"
	"github.com/chime-experiment/alpenhorn-chime/internal/nodeio"
)

var importCmd = &cobra.Command{
	Use:   "import <node> [path...]",
	Short: "Import files on a node into the catalog",
	Long: `Import the given files, relative to the node root or absolute paths
under it. With no paths the whole node is scanned.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		out := cmd.OutOrStdout()

		if client := dialDaemon(cfg); client != nil {
			defer client.Close()
			if len(args) == 1 {
				n, err := client.Scan(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d files imported\n", n)
				return nil
			}
			for _, p := range args[1:] {
				outcome, err := client.Import(ctx, args[0], p)
				if err != nil {
					return fmt.Errorf("%s: %w", p, err)
				}
				fmt.Fprintf(out, "%s: %s\n", p, outcome)
			}
			return nil
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ext := newExtension(store)
		node, err := store.NodeByName(ctx, args[0])
		if err != nil {
			return fmt.Errorf("node %s: %w", args[0], err)
		}
		nio, err := ext.NodeIO(node, store, nodeio.Options{LFSCommand: cfg.LFSCommand})
		if err != nil {
			return err
		}
		imp := importer.New(store, ext.ImportDetect)

		if len(args) == 1 {
			n, err := imp.Scan(ctx, nio)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d files imported\n", n)
			return nil
		}

		for _, p := range args[1:] {
			rel, err := nodeRelative(node.Root, p)
			if err != nil {
				return err
			}
			outcome, err := imp.ImportFile(ctx, nio, rel)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %s\n", rel, outcome)
		}
		return nil
	},
}

// nodeRelative converts p to a path relative to root. Relative paths are
// taken as already relative to the node.
func nodeRelative(root, p string) (string, error) {
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is not under node root %s", p, root)
	}
	return filepath.ToSlash(rel), nil
}

func init() {
	rootCmd.AddCommand(importCmd)
}
