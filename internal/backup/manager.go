package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chime-experiment/alpenhorn-chime/internal/log"
)

const (
	defaultInterval = 6 * time.Hour
	defaultKeep     = 24

	namePrefix = "catalog-"
	nameSuffix = ".duckdb"
	stampFmt   = "20060102T150405.000Z"
)

// Manager snapshots the catalog on a fixed interval.
type Manager struct {
	catalog  Catalog
	cfg      Config
	uploader Uploader
	now      func() time.Time
	logger   zerolog.Logger
}

// New validates cfg. It returns nil, nil when backups are disabled.
func New(catalog Catalog, cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if catalog == nil {
		return nil, errors.New("backup: no catalog")
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("backup: backup-dir is required when backups are enabled")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Keep <= 0 {
		cfg.Keep = defaultKeep
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("backup: create backup-dir: %w", err)
	}

	m := &Manager{
		catalog: catalog,
		cfg:     cfg,
		now:     time.Now,
		logger:  log.WithComponent("backup"),
	}
	if len(cfg.UploadCommand) > 0 {
		u, err := NewCommandUploader(cfg.UploadCommand)
		if err != nil {
			return nil, fmt.Errorf("backup: %w", err)
		}
		m.uploader = u
	}
	return m, nil
}

// Run snapshots straight away and then every interval until ctx ends.
func (m *Manager) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		if _, err := m.Snapshot(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error().Err(err).Msg("catalog snapshot failed")
		}
		timer.Reset(m.cfg.Interval)
	}
}

// Snapshot writes one snapshot, uploads it if configured and prunes the
// backup directory down to the newest Keep files. It returns the path of
// the new snapshot.
func (m *Manager) Snapshot(ctx context.Context) (string, error) {
	name := namePrefix + m.now().UTC().Format(stampFmt) + nameSuffix
	path := filepath.Join(m.cfg.Dir, name)

	if err := m.catalog.SnapshotTo(ctx, path); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	m.logger.Info().Str(log.FieldPath, path).Msg("wrote catalog snapshot")

	if m.uploader != nil {
		if err := m.uploader.UploadFile(ctx, path); err != nil {
			return path, fmt.Errorf("upload %s: %w", name, err)
		}
		m.logger.Info().Str(log.FieldPath, name).Msg("uploaded catalog snapshot")
	}

	removed, err := prune(m.cfg.Dir, m.cfg.Keep)
	if err != nil {
		return path, fmt.Errorf("prune: %w", err)
	}
	if removed > 0 {
		m.logger.Debug().Int(log.FieldCount, removed).Msg("pruned old snapshots")
	}
	return path, nil
}

// prune keeps the newest keep snapshots in dir. Names sort by time.
func prune(dir string, keep int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, namePrefix) && strings.HasSuffix(n, nameSuffix) {
			names = append(names, n)
		}
	}
	if len(names) <= keep {
		return 0, nil
	}
	slices.Sort(names)

	stale := names[:len(names)-keep]
	for _, n := range stale {
		if err := os.Remove(filepath.Join(dir, n)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, err
		}
	}
	return len(stale), nil
}
