// Package extension is the registration point the daemon reads to learn
// what this module adds to the host: the import detector and the extra
// node I/O classes.
package extension

import (
	"context"
	"maps"

	"github.com/chime-experiment/alpenhorn-chime/internal/detect"
	"github.com/chime-experiment/alpenhorn-chime/internal/model"
	"github.com/chime-experiment/alpenhorn-chime/internal/nodeio"
)

// ImportDetectFunc returns the acquisition a node-relative path belongs to
// and the callback to run once it is imported, or an empty name when the
// path is not recognised.
type ImportDetectFunc func(ctx context.Context, relPath string, node model.StorageNode) (string, detect.Callback, error)

// Extension is what Register hands the daemon.
type Extension struct {
	ImportDetect ImportDetectFunc
	IOModules    map[string]nodeio.Factory
}

// Register returns the CHIME extension built around d.
func Register(d *detect.Detector) Extension {
	return Extension{
		ImportDetect: d.ImportDetect,
		IOModules: map[string]nodeio.Factory{
			"reserving": nodeio.NewReserving,
		},
	}
}

// Modules returns the built-in I/O classes merged with the extension's.
// Extension modules replace built-ins of the same name.
func (e Extension) Modules() map[string]nodeio.Factory {
	all := nodeio.Builtin()
	maps.Copy(all, e.IOModules)
	return all
}

// NodeIO builds the I/O class for node.
func (e Extension) NodeIO(node model.StorageNode, cat nodeio.Catalog, opts nodeio.Options) (nodeio.NodeIO, error) {
	return nodeio.For(node, cat, opts, e.Modules())
}
