// Package nodeio implements the storage node I/O classes: how files are
// copied onto, checked on and deleted from a node.
package nodeio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

var (
	// ErrNotReserved is returned by Reserving.Pull when it cancels a request
	// for a file that has no reservation on the node.
	ErrNotReserved = errors.New("nodeio: file not reserved on node")
	// ErrUnknownClass is returned for an io_class with no implementation.
	ErrUnknownClass = errors.New("nodeio: unknown io class")
)

// Catalog is the part of the catalog the I/O classes use.
type Catalog interface {
	NodeByID(ctx context.Context, id int64) (model.StorageNode, error)
	CopyOf(ctx context.Context, fileID, nodeID int64) (model.FileCopy, error)
	CopiesOnNode(ctx context.Context, nodeID int64) (count int64, bytes int64, err error)
	UpsertCopy(ctx context.Context, c model.FileCopy) (model.FileCopy, error)
	SetCopyState(ctx context.Context, copyID int64, hasFile, wantsFile string, ready bool) error
	CancelRequest(ctx context.Context, id int64) error
	StartRequest(ctx context.Context, id int64, at time.Time) error
	CompleteRequest(ctx context.Context, id int64, at time.Time) error
	ReservationTags(ctx context.Context, fileID, nodeID int64) ([]string, error)
}

// NodeIO performs file operations on one storage node.
type NodeIO interface {
	Node() model.StorageNode
	// AbsPath returns the absolute path of a file relative to the node root.
	AbsPath(rel string) string
	Open(rel string) (*os.File, error)
	// Checksum returns the size and hex MD5 of a file on the node.
	Checksum(rel string) (int64, string, error)
	// AvailBytes reports the space free for new files.
	AvailBytes(ctx context.Context) (int64, error)
	// Fits reports whether a file of size bytes may be added.
	Fits(ctx context.Context, size int64) (bool, error)
	// Pull fulfils a copy request whose destination group holds this node.
	Pull(ctx context.Context, req model.CopyRequest) error
	// Delete removes the given copies from the node.
	Delete(ctx context.Context, copies []model.FileCopy) error
}

// CommandRunner runs an external command and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Options configures the I/O classes.
type Options struct {
	LFSCommand string        // path of the lfs binary; default "lfs"
	Run        CommandRunner // nil runs the command with os/exec
}

// Factory builds the NodeIO of one node.
type Factory func(node model.StorageNode, cat Catalog, opts Options) (NodeIO, error)

// Builtin returns the I/O classes provided without extensions.
func Builtin() map[string]Factory {
	return map[string]Factory{
		"default":  func(n model.StorageNode, c Catalog, o Options) (NodeIO, error) { return NewDefault(n, c), nil },
		"lfsquota": func(n model.StorageNode, c Catalog, o Options) (NodeIO, error) { return NewLFSQuota(n, c, o) },
	}
}

// For builds the NodeIO named by node.IOClass. Class names are matched
// case-insensitively against modules; an empty class is "default" and
// "reserved" is an alias for "reserving".
func For(node model.StorageNode, cat Catalog, opts Options, modules map[string]Factory) (NodeIO, error) {
	name := strings.ToLower(strings.TrimSpace(node.IOClass))
	switch name {
	case "":
		name = "default"
	case "reserved":
		name = "reserving"
	}
	f, ok := modules[name]
	if !ok {
		return nil, fmt.Errorf("%w %q on node %s", ErrUnknownClass, node.IOClass, node.Name)
	}
	return f(node, cat, opts)
}
