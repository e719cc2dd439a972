package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chime-experiment/alpenhorn-chime/internal/duckdb"
	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

// nodeFile is the YAML description of storage groups and nodes.
type nodeFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Notes string `yaml:"notes"`
	} `yaml:"groups"`
	Nodes []nodeDef `yaml:"nodes"`
}

type nodeDef struct {
	Name        string         `yaml:"name"`
	Group       string         `yaml:"group"`
	Root        string         `yaml:"root"`
	Host        string         `yaml:"host"`
	Address     string         `yaml:"address"`
	Active      *bool          `yaml:"active"`
	AutoImport  bool           `yaml:"auto_import"`
	IOClass     string         `yaml:"io_class"`
	IOConfig    map[string]any `yaml:"io_config"`
	StorageType string         `yaml:"storage_type"`
	MaxTotalGB  float64        `yaml:"max_total_gb"`
	MinAvailGB  float64        `yaml:"min_avail_gb"`
	Notes       string         `yaml:"notes"`
}

func parseNodeFile(data []byte) (nodeFile, error) {
	var nf nodeFile
	if err := yaml.Unmarshal(data, &nf); err != nil {
		return nf, fmt.Errorf("parse node file: %w", err)
	}
	for i, n := range nf.Nodes {
		if n.Name == "" || n.Group == "" || n.Root == "" {
			return nf, fmt.Errorf("node %d: name, group and root are required", i+1)
		}
	}
	return nf, nil
}

// syncNodes creates the groups and upserts the nodes of nf in one
// transaction. Groups referenced by nodes are created if not listed.
func syncNodes(ctx context.Context, store *duckdb.Store, nf nodeFile) (int, error) {
	count := 0
	err := store.Atomic(ctx, func(tx *duckdb.Store) error {
		groups := make(map[string]int64)
		for _, g := range nf.Groups {
			sg, err := tx.GetOrCreateGroup(ctx, g.Name, g.Notes)
			if err != nil {
				return err
			}
			groups[g.Name] = sg.ID
		}

		for _, n := range nf.Nodes {
			gid, ok := groups[n.Group]
			if !ok {
				sg, err := tx.GetOrCreateGroup(ctx, n.Group, "")
				if err != nil {
					return err
				}
				gid = sg.ID
				groups[n.Group] = gid
			}

			var ioConfig string
			if len(n.IOConfig) > 0 {
				b, err := json.Marshal(n.IOConfig)
				if err != nil {
					return fmt.Errorf("node %s: io_config: %w", n.Name, err)
				}
				ioConfig = string(b)
			}
			storageType := n.StorageType
			if storageType == "" {
				storageType = "A"
			}

			if _, err := tx.UpsertNode(ctx, model.StorageNode{
				Name:        n.Name,
				GroupID:     gid,
				Root:        n.Root,
				Host:        n.Host,
				Address:     n.Address,
				Active:      n.Active == nil || *n.Active,
				AutoImport:  n.AutoImport,
				IOClass:     n.IOClass,
				IOConfig:    ioConfig,
				StorageType: storageType,
				MaxTotalGB:  n.MaxTotalGB,
				MinAvailGB:  n.MinAvailGB,
				Notes:       n.Notes,
			}); err != nil {
				return fmt.Errorf("node %s: %w", n.Name, err)
			}
			count++
		}
		return nil
	})
	return count, err
}

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Manage storage nodes",
}

var nodesSyncCmd = &cobra.Command{
	Use:   "sync <file.yml>",
	Short: "Create or update storage groups and nodes from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		nf, err := parseNodeFile(data)
		if err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := syncNodes(context.Background(), store, nf)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d nodes synced\n", n)
		return nil
	},
}

var nodesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List storage nodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		nodes, err := store.ListNodes(context.Background())
		if err != nil {
			return err
		}
		return writeNodeTable(cmd.OutOrStdout(), nodes)
	},
}

func writeNodeTable(out io.Writer, nodes []model.StorageNode) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tHOST\tROOT\tIO CLASS\tACTIVE\tAVAIL GB")
	for _, n := range nodes {
		ioClass := n.IOClass
		if ioClass == "" {
			ioClass = "Default"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%.1f\n", n.Name, n.Host, n.Root, ioClass, n.Active, n.AvailGB)
	}
	return w.Flush()
}

func init() {
	nodesCmd.AddCommand(nodesSyncCmd, nodesListCmd)
	rootCmd.AddCommand(nodesCmd)
}
