// Package daemon runs the periodic update loop over the storage nodes on
// this host.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/chime-experiment/alpenhorn-chime/internal/duckdb"
	"github.com/chime-experiment/alpenhorn-chime/internal/extension"
	"github.com/chime-experiment/alpenhorn-chime/internal/importer"
	"github.com/chime-experiment/alpenhorn-chime/internal/log"
	"github.com/chime-experiment/alpenhorn-chime/internal/metrics"
	"github.com/chime-experiment/alpenhorn-chime/internal/model"
	"github.com/chime-experiment/alpenhorn-chime/internal/nodeio"
)

const gib = 1 << 30

// Config controls the update loop.
type Config struct {
	Host       string        // nodes whose host matches are serviced
	Interval   time.Duration // time between update passes
	Workers    int           // nodes updated concurrently
	AutoImport bool          // import new files on auto-import nodes
	Watch      bool          // import with fsnotify instead of scanning each pass
	NodeIO     nodeio.Options
	Version    string
}

// Daemon services the active nodes on one host.
type Daemon struct {
	store    *duckdb.Store
	ext      extension.Extension
	importer *importer.Importer
	cfg      Config
	started  time.Time
	logger   zerolog.Logger

	mu      sync.Mutex
	watched map[int64]*watcher
}

type watcher struct {
	cancel context.CancelFunc
}

// New returns a Daemon. A nil imp gets an importer without a journal.
// Control-socket imports work whether or not auto-import is on.
func New(store *duckdb.Store, ext extension.Extension, imp *importer.Importer, cfg Config) *Daemon {
	if cfg.Interval <= 0 {
		cfg.Interval = model.DefaultUpdateInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = model.DefaultWorkers
	}
	if imp == nil {
		imp = importer.New(store, ext.ImportDetect)
	}
	return &Daemon{
		store:    store,
		ext:      ext,
		importer: imp,
		cfg:      cfg,
		started:  time.Now(),
		logger:   log.WithComponent("daemon").With().Str("host", cfg.Host).Logger(),
		watched:  make(map[int64]*watcher),
	}
}

// NodeIO resolves the I/O class of a node by name.
func (d *Daemon) NodeIO(ctx context.Context, name string) (nodeio.NodeIO, error) {
	node, err := d.store.NodeByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", name, err)
	}
	return d.ext.NodeIO(node, d.store, d.cfg.NodeIO)
}

// Run replays journalled imports then runs update passes until ctx is
// cancelled. In watch mode each pass also starts watchers for auto-import
// nodes that have appeared and stops those that went away.
func (d *Daemon) Run(ctx context.Context) error {
	if _, err := d.importer.Replay(ctx, func(name string) (nodeio.NodeIO, error) {
		return d.NodeIO(ctx, name)
	}); err != nil {
		d.logger.Error().Err(err).Msg("import journal replay failed")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(d.cfg.Interval)
		defer ticker.Stop()
		for {
			if d.cfg.AutoImport && d.cfg.Watch {
				if err := d.refreshWatchers(gctx, g); err != nil && gctx.Err() == nil {
					d.logger.Error().Err(err).Msg("cannot refresh watchers")
				}
			}
			if err := d.Update(gctx); err != nil && gctx.Err() == nil {
				d.logger.Error().Err(err).Msg("update pass failed")
			}
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	return g.Wait()
}

// refreshWatchers reconciles the running watchers with the active
// auto-import nodes on this host.
func (d *Daemon) refreshWatchers(ctx context.Context, g *errgroup.Group) error {
	nodes, err := d.store.ActiveNodesOnHost(ctx, d.cfg.Host)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	want := make(map[int64]bool, len(nodes))
	for _, node := range nodes {
		if !node.AutoImport {
			continue
		}
		want[node.ID] = true
		if _, ok := d.watched[node.ID]; ok {
			continue
		}
		nio, err := d.ext.NodeIO(node, d.store, d.cfg.NodeIO)
		if err != nil {
			d.logger.Error().Err(err).Str(log.FieldNode, node.Name).Msg("cannot watch node")
			continue
		}

		wctx, cancel := context.WithCancel(ctx)
		w := &watcher{cancel: cancel}
		d.watched[node.ID] = w
		d.logger.Info().Str(log.FieldNode, node.Name).Msg("watching node")
		g.Go(func() error {
			defer cancel()
			if err := d.importer.Watch(wctx, nio); err != nil {
				d.logger.Error().Err(err).Str(log.FieldNode, node.Name).Msg("watch stopped")
			}
			d.mu.Lock()
			if d.watched[node.ID] == w {
				delete(d.watched, node.ID)
			}
			d.mu.Unlock()
			return nil
		})
	}

	for id, w := range d.watched {
		if !want[id] {
			w.cancel()
			delete(d.watched, id)
			d.logger.Info().Int64("node_id", id).Msg("stopped watching node")
		}
	}
	return nil
}

// watching returns the ids of the nodes with a running watcher.
func (d *Daemon) watching() map[int64]bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make(map[int64]bool, len(d.watched))
	for id := range d.watched {
		ids[id] = true
	}
	return ids
}

// Update runs one pass over the active nodes on this host. Copy requests
// for a group are handled by the first of its nodes on this host.
func (d *Daemon) Update(ctx context.Context) error {
	nodes, err := d.store.ActiveNodesOnHost(ctx, d.cfg.Host)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}

	puller := make(map[int64]int64, len(nodes)) // group id -> node id
	for _, n := range nodes {
		if _, ok := puller[n.GroupID]; !ok {
			puller[n.GroupID] = n.ID
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for _, node := range nodes {
		pulls := puller[node.GroupID] == node.ID
		g.Go(func() error {
			if err := d.updateNode(gctx, node, pulls); err != nil {
				d.logger.Error().Err(err).Str(log.FieldNode, node.Name).Msg("node update failed")
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Daemon) updateNode(ctx context.Context, node model.StorageNode, pulls bool) error {
	start := time.Now()
	defer func() { metrics.ObserveUpdate(node.Name, time.Since(start).Seconds()) }()

	nio, err := d.ext.NodeIO(node, d.store, d.cfg.NodeIO)
	if err != nil {
		return err
	}
	logger := d.logger.With().Str(log.FieldNode, node.Name).Logger()

	if avail, err := nio.AvailBytes(ctx); err != nil {
		logger.Warn().Err(err).Msg("cannot measure free space")
	} else {
		metrics.SetNodeAvail(node.Name, float64(avail))
		if err := d.store.UpdateNodeAvail(ctx, node.ID, float64(avail)/gib); err != nil {
			return err
		}
	}

	if d.cfg.AutoImport && node.AutoImport && !d.cfg.Watch {
		if n, err := d.importer.Scan(ctx, nio); err != nil {
			logger.Error().Err(err).Msg("auto-import scan failed")
		} else if n > 0 {
			logger.Info().Int(log.FieldCount, n).Msg("auto-imported files")
		}
	}

	var errs []error
	copies, err := d.store.CopiesToDelete(ctx, node.ID)
	if err != nil {
		return err
	}
	if len(copies) > 0 {
		if err := nio.Delete(ctx, copies); err != nil {
			errs = append(errs, fmt.Errorf("delete: %w", err))
		}
	}

	if pulls {
		reqs, err := d.store.PendingRequests(ctx, node.GroupID)
		if err != nil {
			return errors.Join(append(errs, err)...)
		}
		for _, req := range reqs {
			if ctx.Err() != nil {
				break
			}
			err := nio.Pull(ctx, req)
			switch {
			case err == nil:
			case errors.Is(err, nodeio.ErrNotReserved):
				logger.Debug().Int64(log.FieldRequest, req.ID).Msg("request cancelled: not reserved")
			default:
				logger.Error().Err(err).Int64(log.FieldRequest, req.ID).Msg("pull failed")
			}
		}
	}

	return errors.Join(errs...)
}
