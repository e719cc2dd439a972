// Package backup takes periodic copies of the catalog and optionally ships
// them off the host.
package backup

import (
	"context"
	"time"
)

// Config controls periodic catalog snapshots.
type Config struct {
	Enabled  bool
	Interval time.Duration
	Dir      string
	Keep     int

	// UploadCommand is run for every snapshot when set. Any "{file}" in
	// its arguments becomes the snapshot path.
	UploadCommand []string
}

// Catalog is anything that can write a consistent copy of itself.
type Catalog interface {
	SnapshotTo(ctx context.Context, dstPath string) error
}

// Uploader ships one snapshot off the host.
type Uploader interface {
	UploadFile(ctx context.Context, localPath string) error
}
