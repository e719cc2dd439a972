package model

import (
	"context"
	"time"
)

// ListOpts holds optional filters for list queries.
type ListOpts struct {
	Type   string // acq type name; empty = all
	Inst   string // instrument name; empty = all
	Limit  int
	Offset int
}

// AcqSummary is an acquisition joined with its type and instrument names.
type AcqSummary struct {
	ArchiveAcq
	TypeName  string
	InstName  string
	FileCount int64
}

// CatalogReader provides the read-side queries used by the HTTP API.
type CatalogReader interface {
	ListAcqs(ctx context.Context, opts ListOpts) ([]AcqSummary, error)
	DescribeAcq(ctx context.Context, name string) (AcqSummary, error)
	FilesInAcq(ctx context.Context, acqID int64) ([]ArchiveFile, error)
	ListNodes(ctx context.Context) ([]StorageNode, error)
	ListAcqTypes(ctx context.Context) ([]AcqType, error)
	ListFileTypes(ctx context.Context) ([]FileType, error)
	TableRowCounts(ctx context.Context) (map[string]int64, error)
}

// InfoWriter persists acq and file info records.
type InfoWriter interface {
	InsertInfo(ctx context.Context, rec InfoRecord) error
}

// DaemonStatus is what a running daemon reports about itself.
type DaemonStatus struct {
	Host      string
	Version   string
	Started   time.Time
	Nodes     []StorageNode // active nodes on Host
	RowCounts map[string]int64
}
