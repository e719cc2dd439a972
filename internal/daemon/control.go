package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chime-experiment/alpenhorn-chime/internal/log"
	"github.com/chime-experiment/alpenhorn-chime/internal/model"
	"github.com/chime-experiment/alpenhorn-chime/internal/nodeio"
)

// localNode resolves a node by name and checks that it lives on this host.
func (d *Daemon) localNode(ctx context.Context, name string) (nodeio.NodeIO, error) {
	nio, err := d.NodeIO(ctx, name)
	if err != nil {
		return nil, err
	}
	if n := nio.Node(); n.Host != d.cfg.Host {
		return nil, fmt.Errorf("node %s is on host %q, not %q", name, n.Host, d.cfg.Host)
	}
	return nio, nil
}

// Import imports one file on a node on behalf of a control client. path may
// be absolute (under the node root) or relative to the root.
func (d *Daemon) Import(ctx context.Context, node, path string) (string, error) {
	nio, err := d.localNode(ctx, node)
	if err != nil {
		return "", err
	}
	root := nio.Node().Root
	rel := path
	if filepath.IsAbs(path) {
		rel, err = filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
			return "", fmt.Errorf("%s is not under node root %s", path, root)
		}
	}
	outcome, err := d.importer.Enqueue(ctx, nio, rel)
	if err != nil {
		return "", err
	}
	return outcome.String(), nil
}

// Scan walks a node root and imports every file not yet in the catalog.
func (d *Daemon) Scan(ctx context.Context, node string) (int, error) {
	nio, err := d.localNode(ctx, node)
	if err != nil {
		return 0, err
	}
	n, err := d.importer.Scan(ctx, nio)
	if err != nil {
		return n, err
	}
	l := d.logger.With().Str(log.FieldNode, node).Logger()
	l.Info().Int(log.FieldCount, n).Msg("scan requested over control socket")
	return n, nil
}

// Status reports the nodes serviced by this daemon and catalog sizes.
func (d *Daemon) Status(ctx context.Context) (model.DaemonStatus, error) {
	nodes, err := d.store.ActiveNodesOnHost(ctx, d.cfg.Host)
	if err != nil {
		return model.DaemonStatus{}, fmt.Errorf("list nodes: %w", err)
	}
	counts, err := d.store.TableRowCounts(ctx)
	if err != nil {
		return model.DaemonStatus{}, fmt.Errorf("row counts: %w", err)
	}
	return model.DaemonStatus{
		Host:      d.cfg.Host,
		Version:   d.cfg.Version,
		Started:   d.started,
		Nodes:     nodes,
		RowCounts: counts,
	}, nil
}

// Query runs a read-only SQL query against the catalog.
func (d *Daemon) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	return d.store.ExecuteQuery(ctx, sql)
}
