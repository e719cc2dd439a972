// Package importer registers files found under a node root in the catalog.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chime-experiment/alpenhorn-chime/internal/detect"
	"github.com/chime-experiment/alpenhorn-chime/internal/duckdb"
	"github.com/chime-experiment/alpenhorn-chime/internal/extension"
	"github.com/chime-experiment/alpenhorn-chime/internal/journal"
	"github.com/chime-experiment/alpenhorn-chime/internal/log"
	"github.com/chime-experiment/alpenhorn-chime/internal/metrics"
	"github.com/chime-experiment/alpenhorn-chime/internal/model"
	"github.com/chime-experiment/alpenhorn-chime/internal/nodeio"
)

// Outcome is what ImportFile did with a path.
type Outcome int

const (
	Imported Outcome = iota
	AlreadyPresent
	Ignored // not recognised as archive data
	Locked  // still being written
)

func (o Outcome) String() string {
	switch o {
	case Imported:
		return "imported"
	case AlreadyPresent:
		return "already present"
	case Ignored:
		return "ignored"
	case Locked:
		return "locked"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

const defaultDebounce = 2 * time.Second

// Config configures an Importer.
type Config struct {
	Journal  *journal.Journal // optional
	Debounce time.Duration    // quiet period before a watched file is imported
}

// Importer imports files into the catalog.
type Importer struct {
	store    *duckdb.Store
	detect   extension.ImportDetectFunc
	journal  *journal.Journal
	debounce time.Duration
	logger   zerolog.Logger
}

// New returns an Importer recognising files with detectFn.
func New(store *duckdb.Store, detectFn extension.ImportDetectFunc, conf ...Config) *Importer {
	var cfg Config
	if len(conf) > 0 {
		cfg = conf[0]
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	return &Importer{
		store:    store,
		detect:   detectFn,
		journal:  cfg.Journal,
		debounce: cfg.Debounce,
		logger:   log.WithComponent("importer"),
	}
}

// cleanRel normalises a node-relative path, rejecting paths that leave the
// node root.
func cleanRel(rel string) (string, error) {
	rel = path.Clean(filepath.ToSlash(rel))
	if rel == "." || path.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %q is not under the node root", rel)
	}
	return rel, nil
}

// lockPath returns the lock file that marks rel as still being written.
func lockPath(rel string) string {
	dir, base := path.Split(rel)
	return dir + "." + base + ".lock"
}

// ImportFile imports one file given relative to the node root. The acq,
// file and copy records and the detection callback run in one transaction.
func (im *Importer) ImportFile(ctx context.Context, nio nodeio.NodeIO, rel string) (Outcome, error) {
	node := nio.Node()
	rel, err := cleanRel(rel)
	if err != nil {
		return Ignored, err
	}
	logger := im.logger.With().Str(log.FieldNode, node.Name).Str(log.FieldPath, rel).Logger()

	base := path.Base(rel)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".pull") {
		return Ignored, nil
	}
	if _, err := os.Stat(nio.AbsPath(lockPath(rel))); err == nil {
		logger.Debug().Msg("file locked; skipping")
		return Locked, nil
	}

	has, err := im.store.NodeTracksFile(ctx, node.ID, rel)
	if err != nil {
		return Ignored, err
	}
	if has {
		return AlreadyPresent, nil
	}

	acqName, callback, err := im.detect(ctx, rel, node)
	if err != nil {
		metrics.RecordImport(node.Name, metrics.ResultError)
		return Ignored, fmt.Errorf("detect %s: %w", rel, err)
	}
	if acqName == "" {
		logger.Debug().Msg("not archive data")
		metrics.RecordImport(node.Name, metrics.ResultSkipped)
		return Ignored, nil
	}

	size, sum, err := nio.Checksum(rel)
	if err != nil {
		metrics.RecordImport(node.Name, metrics.ResultError)
		return Ignored, err
	}

	err = im.store.Atomic(ctx, func(tx *duckdb.Store) error {
		acq, newAcq, err := tx.GetOrCreateAcq(ctx, acqName)
		if err != nil {
			return err
		}
		file, newFile, err := tx.GetOrCreateFile(ctx, acq, base, size, sum)
		if err != nil {
			return err
		}

		hasFile := model.HasFileYes
		if !newFile && file.MD5Sum != "" && file.MD5Sum != sum {
			logger.Warn().Str("want", file.MD5Sum).Str("got", sum).Msg("checksum differs from catalog; copy marked corrupt")
			hasFile = model.HasFileCorrupt
		}
		cp, err := tx.UpsertCopy(ctx, model.FileCopy{
			FileID:    file.ID,
			NodeID:    node.ID,
			HasFile:   hasFile,
			WantsFile: model.WantsFileYes,
			Ready:     true,
			SizeB:     size,
		})
		if err != nil {
			return err
		}
		cp.File = file

		imp := detect.Imported{Copy: cp, Node: node}
		if newAcq {
			imp.Acq = &acq
		}
		if newFile {
			imp.File = &file
		}
		if callback == nil {
			return nil
		}
		return callback(ctx, tx, imp)
	})
	if err != nil {
		metrics.RecordImport(node.Name, metrics.ResultError)
		return Ignored, fmt.Errorf("import %s: %w", rel, err)
	}

	metrics.RecordImport(node.Name, metrics.ResultOK)
	logger.Info().Str(log.FieldAcq, acqName).Int64("size_b", size).Msg("file imported")
	return Imported, nil
}

// Scan walks the node root and imports every file found. Per-file errors
// are logged and skipped; the count of imported files is returned.
func (im *Importer) Scan(ctx context.Context, nio nodeio.NodeIO) (int, error) {
	node := nio.Node()
	imported := 0
	err := filepath.WalkDir(node.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			im.logger.Warn().Err(err).Str(log.FieldPath, p).Msg("walk error")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if p != node.Root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(node.Root, p)
		if err != nil {
			return nil
		}
		outcome, err := im.ImportFile(ctx, nio, rel)
		if err != nil {
			im.logger.Error().Err(err).Str(log.FieldNode, node.Name).Str(log.FieldPath, rel).Msg("import failed")
			return nil
		}
		if outcome == Imported {
			imported++
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return imported, fmt.Errorf("scan %s: %w", node.Root, err)
	}
	return imported, nil
}

// Enqueue records an import request in the journal, if any, then runs it.
// The journal entry is committed whether or not the import succeeded.
func (im *Importer) Enqueue(ctx context.Context, nio nodeio.NodeIO, rel string) (Outcome, error) {
	var seq uint64
	if im.journal != nil {
		var err error
		seq, err = im.journal.Append(model.ImportRequest{
			Node:   nio.Node().Name,
			Path:   filepath.ToSlash(rel),
			Queued: time.Now().UTC(),
		})
		if err != nil {
			return Ignored, err
		}
	}

	outcome, err := im.ImportFile(ctx, nio, rel)
	if im.journal != nil && ctx.Err() == nil {
		if cerr := im.journal.Commit(seq); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return outcome, err
}

// Replay re-runs import requests left uncommitted in the journal. lookup
// returns the I/O class of a node by name; requests for nodes it rejects
// are dropped.
func (im *Importer) Replay(ctx context.Context, lookup func(node string) (nodeio.NodeIO, error)) (int, error) {
	if im.journal == nil {
		return 0, nil
	}

	replayed := 0
	err := im.journal.Replay(func(seq uint64, req model.ImportRequest) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		nio, err := lookup(req.Node)
		if err != nil {
			im.logger.Warn().Err(err).Str(log.FieldNode, req.Node).Str(log.FieldPath, req.Path).Msg("dropping journalled import")
		} else if _, err := im.ImportFile(ctx, nio, req.Path); err != nil {
			im.logger.Error().Err(err).Str(log.FieldNode, req.Node).Str(log.FieldPath, req.Path).Msg("journalled import failed")
		} else {
			replayed++
		}
		return im.journal.Commit(seq)
	})
	if err != nil {
		return replayed, fmt.Errorf("replay import journal: %w", err)
	}
	if replayed > 0 {
		im.logger.Info().Int(log.FieldCount, replayed).Msg("replayed journalled imports")
	}
	return replayed, nil
}
