package model

import (
	"path"
	"time"
)

// Copy states stored in archive_file_copy.has_file.
const (
	HasFileYes     = "Y"
	HasFileNo      = "N"
	HasFileMaybe   = "M" // needs a check
	HasFileCorrupt = "X"
)

// Copy states stored in archive_file_copy.wants_file.
const (
	WantsFileYes   = "Y"
	WantsFileMaybe = "M" // may be deleted when space is needed
	WantsFileNo    = "N" // scheduled for deletion
)

// StorageGroup is a set of nodes treated as one destination for transfers.
type StorageGroup struct {
	ID    int64
	Name  string
	Notes string
}

// StorageNode is one filesystem location that holds archive files.
type StorageNode struct {
	ID          int64
	Name        string
	GroupID     int64
	Root        string
	Host        string
	Address     string
	Active      bool
	AutoImport  bool
	IOClass     string // empty means Default
	IOConfig    string // JSON object read by the I/O class
	StorageType string // A(rchive), F(ield), T(ransport)
	MaxTotalGB  float64
	MinAvailGB  float64
	AvailGB     float64
	Notes       string
}

// AcqType describes a kind of acquisition. The name is the last element of
// an acquisition name.
type AcqType struct {
	ID         int64
	Name       string
	Priority   int
	InfoClass  string // empty: no info class, never matched on import
	InfoConfig string
	Notes      string
}

// FileType describes a kind of file within an acquisition. Pattern is a
// regular expression matched against the start of the file name; types
// without a pattern cannot be imported.
type FileType struct {
	ID         int64
	Name       string
	Priority   int
	InfoClass  string
	InfoConfig string
	Pattern    string
	Notes      string
}

// ArchiveInst is the instrument that took an acquisition.
type ArchiveInst struct {
	ID    int64
	Name  string
	Notes string
}

// ArchiveAcq is one acquisition: a directory of files under a node root.
// TypeID and InstID are zero when unset.
type ArchiveAcq struct {
	ID      int64
	Name    string
	TypeID  int64
	InstID  int64
	Comment string
}

// ArchiveFile is one file of an acquisition.
type ArchiveFile struct {
	ID         int64
	AcqID      int64
	AcqName    string
	Name       string
	SizeB      int64
	MD5Sum     string
	Registered time.Time
	TypeID     int64
}

// Path returns the file path relative to a node root.
func (f ArchiveFile) Path() string {
	return path.Join(f.AcqName, f.Name)
}

// FileCopy records the state of one file on one node.
type FileCopy struct {
	ID         int64
	FileID     int64
	NodeID     int64
	HasFile    string
	WantsFile  string
	Ready      bool
	SizeB      int64
	LastUpdate time.Time

	File ArchiveFile // populated by queries that join the file
}

// CopyRequest asks for a file to be copied from a node into a group.
type CopyRequest struct {
	ID                int64
	FileID            int64
	GroupToID         int64
	NodeFromID        int64
	Completed         bool
	Cancelled         bool
	Timestamp         time.Time
	TransferStarted   *time.Time
	TransferCompleted *time.Time

	File ArchiveFile
}

// Tag names a reservation holder.
type Tag struct {
	ID    int64
	Name  string
	Notes string
}

// Reservation pins a file to a node on behalf of a tag.
type Reservation struct {
	TagID  int64
	FileID int64
	NodeID int64
}

// InfoRecord is one row for an acq or file info table.
type InfoRecord struct {
	Table  string
	Key    string // "acq_id" or "file_id"
	ItemID int64
	Values map[string]any
}

// ImportRequest asks for one file under a node root to be imported.
type ImportRequest struct {
	Node   string    `json:"node"`
	Path   string    `json:"path"` // relative to the node root
	Queued time.Time `json:"queued"`
}
