package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chime-experiment/alpenhorn-chime/internal/detect"
	"github.com/chime-experiment/alpenhorn-chime/internal/duckdb"
	"github.com/chime-experiment/alpenhorn-chime/internal/extension"
	"github.com/chime-experiment/alpenhorn-chime/internal/h5"
	"github.com/chime-experiment/alpenhorn-chime/internal/info"
	"github.com/chime-experiment/alpenhorn-chime/internal/socketrpc"
)

// openStore opens the catalog, creating its directory and applying
// migrations.
func openStore(cfg appConfig) (*duckdb.Store, error) {
	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return nil, fmt.Errorf("create catalog directory: %w", err)
		}
	}
	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return store, nil
}

// newExtension wires the CHIME detector, reading HDF5 files from disk.
func newExtension(store *duckdb.Store) extension.Extension {
	return extension.Register(detect.New(store, info.NewRegistry(h5.Open)))
}

// dialDaemon connects to a running daemon's control socket. It returns nil
// when no daemon is listening, in which case callers open the catalog
// themselves.
func dialDaemon(cfg appConfig) *socketrpc.Client {
	if cfg.ControlSocket == "" {
		return nil
	}
	if _, err := os.Stat(cfg.ControlSocket); err != nil {
		return nil
	}
	c, err := socketrpc.Dial(cfg.ControlSocket)
	if err != nil {
		return nil
	}
	return c
}
