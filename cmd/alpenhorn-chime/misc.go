package main

import (
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/chime-experiment/alpenhorn-chime/internal/duckdb/migrate"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	// Needs no config.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "alpenhorn-chime\n")
		fmt.Fprintf(out, "  Version:    %s\n", version)
		fmt.Fprintf(out, "  Commit:     %s\n", commit)
		fmt.Fprintf(out, "  Built:      %s\n", buildTime)
		fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Catalog schema migrations",
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the applied schema version and pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		st, err := migrate.NewRunner(store.DB()).Status(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "schema version: %d\n", st.Current)
		if len(st.Pending) == 0 {
			fmt.Fprintln(out, "no pending migrations")
		}
		for _, m := range st.Pending {
			fmt.Fprintf(out, "pending: %03d %s\n", m.Version, m.Name)
		}
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run a read-only SQL query against the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rows []map[string]any
		if client := dialDaemon(cfg); client != nil {
			defer client.Close()
			var err error
			if rows, err = client.Query(cmd.Context(), args[0]); err != nil {
				return err
			}
		} else {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			if rows, err = store.ExecuteQuery(cmd.Context(), args[0]); err != nil {
				return err
			}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := dialDaemon(cfg)
		if client == nil {
			return fmt.Errorf("no daemon listening on %s", cfg.ControlSocket)
		}
		defer client.Close()

		st, err := client.Status(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "host:    %s\n", st.Host)
		fmt.Fprintf(out, "version: %s\n", st.Version)
		fmt.Fprintf(out, "uptime:  %s\n", time.Since(st.Started).Truncate(time.Second))
		fmt.Fprintf(out, "files:   %d (%d copies, %d requests)\n",
			st.RowCounts["archive_file"], st.RowCounts["archive_file_copy"], st.RowCounts["archive_file_copy_request"])
		fmt.Fprintln(out)
		return writeNodeTable(out, st.Nodes)
	},
}

func init() {
	migrateCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(versionCmd, migrateCmd, queryCmd, statusCmd)
}
