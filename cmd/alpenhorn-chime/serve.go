package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chime-experiment/alpenhorn-chime/internal/backup"
	"github.com/chime-experiment/alpenhorn-chime/internal/daemon"
	"github.com/chime-experiment/alpenhorn-chime/internal/duckdb"
	"github.com/chime-experiment/alpenhorn-chime/internal/httpserver"
	"github.com/chime-experiment/alpenhorn-chime/internal/importer"
	"github.com/chime-experiment/alpenhorn-chime/internal/journal"
	"github.com/chime-experiment/alpenhorn-chime/internal/log"
	"github.com/chime-experiment/alpenhorn-chime/internal/nodeio"
	"github.com/chime-experiment/alpenhorn-chime/internal/socketrpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the archive daemon for the nodes on this host",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe services the active nodes on this host until interrupted.
func runServe(cfg appConfig) error {
	logger := log.WithComponent("serve")

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ext := newExtension(store)

	// Import journal for crash-safe replay of watched and control imports.
	var ij *journal.Journal
	if cfg.JournalPath != "" {
		ij, err = journal.Open(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("failed to open import journal: %w", err)
		}
		defer ij.Close()
	}
	imp := importer.New(store, ext.ImportDetect, importer.Config{Journal: ij})

	backups, err := backup.New(store, backup.Config{
		Enabled:       cfg.BackupEnabled,
		Interval:      cfg.BackupInterval,
		Dir:           cfg.BackupDir,
		Keep:          cfg.BackupKeep,
		UploadCommand: cfg.BackupUpload,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}

	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, store)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		if _, ok := <-sigCh; !ok {
			return
		}
		logger.Info().Msg("shutting down gracefully (signal again to force)")
		cancel()

		deadline := time.NewTimer(30 * time.Second)
		defer deadline.Stop()
		select {
		case <-sigCh:
			logger.Warn().Msg("forced shutdown")
		case <-deadline.C:
			logger.Warn().Msg("shutdown timed out, forcing exit")
		}
		os.Exit(1)
	}()

	printStartupBanner(cfg)

	d := daemon.New(store, ext, imp, daemon.Config{
		Host:       cfg.Host,
		Interval:   cfg.UpdateInterval,
		Workers:    cfg.Workers,
		AutoImport: cfg.AutoImport,
		Watch:      cfg.Watch,
		NodeIO:     nodeio.Options{LFSCommand: cfg.LFSCommand},
		Version:    version,
	})

	if cfg.ControlSocket != "" {
		ctl := socketrpc.NewServer(cfg.ControlSocket, d)
		if err := ctl.Start(); err != nil {
			return fmt.Errorf("failed to start control socket: %w", err)
		}
		defer ctl.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })
	if retention := duckdb.NewRequestRetention(store, cfg.RequestRetention, 0); retention != nil {
		g.Go(func() error { return retention.Run(gctx) })
	}
	if backups != nil {
		g.Go(func() error { return backups.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("daemon exited with error")
		return err
	}
	return nil
}

func printStartupBanner(cfg appConfig) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")
	toggle := func(on bool, value string) string {
		if on {
			return fmt.Sprintf("%s  %s", check, cyan.Render(value))
		}
		return fmt.Sprintf("%s  %s", dot, dim.Render("disabled"))
	}

	var lines []string
	lines = append(lines, "")
	lines = append(lines, cyan.Bold(true).Render("    alpenhorn-chime"))
	lines = append(lines, "    "+dim.Render("v"+version))
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator, "")

	lines = append(lines, bold.Render("    Daemon"), "")
	lines = append(lines, "    Host           "+fmt.Sprintf("%s  %s", check, cyan.Render(cfg.Host)))
	lines = append(lines, "    Interval       "+fmt.Sprintf("%s  %s", check, dim.Render(cfg.UpdateInterval.String())))
	importMode := "scan"
	if cfg.Watch {
		importMode = "watch"
	}
	lines = append(lines, "    Auto-import    "+toggle(cfg.AutoImport, importMode))
	lines = append(lines, "    HTTP API       "+toggle(cfg.APIEnabled, cfg.APIAddr))
	lines = append(lines, "    Control        "+toggle(cfg.ControlSocket != "", shortenPath(cfg.ControlSocket)))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Storage"), "")
	lines = append(lines, "    Catalog        "+fmt.Sprintf("%s  %s", check, dim.Render(shortenPath(cfg.DBPath))))
	lines = append(lines, "    Snapshots      "+toggle(cfg.BackupEnabled, shortenPath(cfg.BackupDir)))
	if cfg.ConfigPath != "" {
		lines = append(lines, "    Config File    "+fmt.Sprintf("%s  %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, "    Config File    "+fmt.Sprintf("%s  %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
