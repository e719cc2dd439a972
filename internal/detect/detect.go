// Package detect decides whether a file under a node root is CHIME data,
// working only from the acquisition directory and the file name.
package detect

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chime-experiment/alpenhorn-chime/internal/duckdb"
	"github.com/chime-experiment/alpenhorn-chime/internal/info"
	"github.com/chime-experiment/alpenhorn-chime/internal/log"
	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

// ErrNoMatch is returned by ParseAcq when a name is not a CHIME acquisition.
var ErrNoMatch = errors.New("detect: no match")

// Catalog is the part of the catalog read during detection.
type Catalog interface {
	AcqTypeByName(ctx context.Context, name string) (model.AcqType, error)
	InstByName(ctx context.Context, name string) (model.ArchiveInst, error)
	FileTypesForAcqType(ctx context.Context, acqTypeID int64) ([]model.FileType, error)
}

// Writer is the part of the catalog the post-import callback writes to.
// The importer hands it the transaction the import runs in.
type Writer interface {
	model.InfoWriter
	UpdateAcq(ctx context.Context, acq model.ArchiveAcq) error
	SetFileType(ctx context.Context, fileID, typeID int64) error
}

// AcqData is what a CHIME acquisition name encodes.
type AcqData struct {
	AcqTime time.Time
	Inst    model.ArchiveInst
	AcqType model.AcqType
}

// Imported describes a finished import. File and Acq are set only when the
// import created them.
type Imported struct {
	Copy model.FileCopy
	File *model.ArchiveFile
	Acq  *model.ArchiveAcq
	Node model.StorageNode
}

// Callback runs after a file is imported, inside the import transaction.
type Callback func(ctx context.Context, w Writer, imp Imported) error

// Detector implements CHIME import detection.
type Detector struct {
	cat      Catalog
	registry *info.Registry
	patterns sync.Map // pattern string -> *regexp.Regexp
	logger   zerolog.Logger
}

// New returns a Detector reading types from cat and storing info records
// through registry.
func New(cat Catalog, registry *info.Registry) *Detector {
	return &Detector{
		cat:      cat,
		registry: registry,
		logger:   log.WithComponent("detect"),
	}
}

// ParseAcq parses a name of the form <YYYYMMDDTHHMMSSZ>_<inst>_<type>. The
// type and instrument must both be in the catalog. ErrNoMatch is returned
// for anything else; other errors come from the catalog.
func (d *Detector) ParseAcq(ctx context.Context, name string) (AcqData, error) {
	var data AcqData

	parts := strings.Split(name, "_")
	if len(parts) != 3 {
		return data, ErrNoMatch
	}

	acqType, err := d.cat.AcqTypeByName(ctx, parts[2])
	if errors.Is(err, duckdb.ErrNotFound) {
		return data, ErrNoMatch
	}
	if err != nil {
		return data, fmt.Errorf("acq type %s: %w", parts[2], err)
	}

	inst, err := d.cat.InstByName(ctx, parts[1])
	if errors.Is(err, duckdb.ErrNotFound) {
		return data, ErrNoMatch
	}
	if err != nil {
		return data, fmt.Errorf("instrument %s: %w", parts[1], err)
	}

	acqTime, err := time.Parse(info.AcqTimeLayout, parts[0])
	if err != nil {
		return data, ErrNoMatch
	}

	return AcqData{AcqTime: acqTime, Inst: inst, AcqType: acqType}, nil
}

// InstKnown reports whether an instrument name is in the catalog.
func (d *Detector) InstKnown(ctx context.Context, name string) bool {
	_, err := d.cat.InstByName(ctx, name)
	return err == nil
}

// ImportDetect decides whether relPath (relative to the node root) can be
// imported. On success it returns the acquisition name and a callback that
// records type and info data. An empty name means the file is not CHIME data.
func (d *Detector) ImportDetect(ctx context.Context, relPath string, node model.StorageNode) (string, Callback, error) {
	relPath = path.Clean(relPath)
	acqName, fileName := path.Dir(relPath), path.Base(relPath)
	if acqName == "." {
		return "", nil, nil
	}

	acq, err := d.ParseAcq(ctx, acqName)
	if errors.Is(err, ErrNoMatch) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}

	if !d.acqClassAccepts(ctx, acq.AcqType, acqName) {
		return "", nil, nil
	}

	fileTypes, err := d.cat.FileTypesForAcqType(ctx, acq.AcqType.ID)
	if err != nil {
		return "", nil, fmt.Errorf("file types of %s: %w", acq.AcqType.Name, err)
	}

	for _, ft := range fileTypes {
		if ft.Pattern == "" {
			continue
		}
		re, err := d.compile(ft.Pattern)
		if err != nil {
			d.logger.Warn().Err(err).Str("file_type", ft.Name).Msg("bad filename pattern")
			continue
		}
		m := re.FindStringSubmatchIndex(fileName)
		if m == nil {
			continue
		}

		nameData := make(map[string]string)
		for i, group := range re.SubexpNames() {
			if group == "" || m[2*i] < 0 {
				continue
			}
			nameData[group] = fileName[m[2*i]:m[2*i+1]]
		}

		d.logger.Debug().
			Str(log.FieldNode, node.Name).
			Str(log.FieldPath, relPath).
			Str("acq_type", acq.AcqType.Name).
			Str("file_type", ft.Name).
			Msg("import detected")

		match := importMatch{acq: acq, fileType: ft, nameData: nameData, registry: d.registry}
		return acqName, match.storeInfo, nil
	}
	return "", nil, nil
}

// acqNameChecker is implemented by acquisition info classes.
type acqNameChecker interface {
	IsType(ctx context.Context, name string, known info.InstLookup) bool
}

// acqClassAccepts reports whether the info class of an acquisition type
// accepts acqName. Types without an info class are never imported.
func (d *Detector) acqClassAccepts(ctx context.Context, at model.AcqType, acqName string) bool {
	if at.InfoClass == "" {
		return false
	}
	cls, err := d.registry.Resolve(at.InfoClass, info.Target{Kind: info.AcqKind, AcqType: at.Name})
	if err != nil {
		// The callback reports unresolvable classes when it stores info.
		return true
	}
	if nc, ok := cls.(acqNameChecker); ok {
		return nc.IsType(ctx, acqName, d.InstKnown)
	}
	return true
}

// compile anchors a pattern at the start of the file name.
func (d *Detector) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := d.patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	if err != nil {
		return nil, err
	}
	d.patterns.Store(pattern, re)
	return re, nil
}

// importMatch carries what detection learned into the post-import callback.
type importMatch struct {
	acq      AcqData
	fileType model.FileType
	nameData map[string]string
	registry *info.Registry
}

// storeInfo sets the type of a newly created acq and file and stores their
// info records.
func (m importMatch) storeInfo(ctx context.Context, w Writer, imp Imported) error {
	if imp.Acq != nil {
		acq := *imp.Acq
		acq.TypeID = m.acq.AcqType.ID
		acq.InstID = m.acq.Inst.ID
		if err := w.UpdateAcq(ctx, acq); err != nil {
			return fmt.Errorf("set acq type: %w", err)
		}
		err := m.registry.Store(ctx, w, m.acq.AcqType.InfoClass, info.Target{
			Kind:    info.AcqKind,
			ItemID:  acq.ID,
			Root:    imp.Node.Root,
			Path:    imp.Copy.File.Path(),
			AcqType: m.acq.AcqType.Name,
			AcqTime: m.acq.AcqTime,
		})
		if err != nil {
			return fmt.Errorf("acq info: %w", err)
		}
	}

	if imp.File != nil {
		if err := w.SetFileType(ctx, imp.File.ID, m.fileType.ID); err != nil {
			return fmt.Errorf("set file type: %w", err)
		}
		err := m.registry.Store(ctx, w, m.fileType.InfoClass, info.Target{
			Kind:     info.FileKind,
			ItemID:   imp.File.ID,
			Root:     imp.Node.Root,
			Path:     imp.File.Path(),
			AcqType:  m.acq.AcqType.Name,
			NameData: m.nameData,
		})
		if err != nil {
			return fmt.Errorf("file info: %w", err)
		}
	}
	return nil
}
