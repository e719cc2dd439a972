package nodeio

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/chime-experiment/alpenhorn-chime/internal/duckdb"
	"github.com/chime-experiment/alpenhorn-chime/internal/log"
	"github.com/chime-experiment/alpenhorn-chime/internal/metrics"
	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

const gib = 1 << 30

// Default is the plain local-filesystem I/O class.
type Default struct {
	node   model.StorageNode
	cat    Catalog
	logger zerolog.Logger

	// avail measures free space; I/O classes built on Default replace it.
	avail func(ctx context.Context) (int64, error)
}

// NewDefault returns the Default I/O class for node.
func NewDefault(node model.StorageNode, cat Catalog) *Default {
	d := &Default{
		node:   node,
		cat:    cat,
		logger: log.WithComponent("nodeio").With().Str(log.FieldNode, node.Name).Logger(),
	}
	d.avail = d.statfsAvail
	return d
}

func (d *Default) Node() model.StorageNode { return d.node }

func (d *Default) AbsPath(rel string) string {
	return filepath.Join(d.node.Root, filepath.FromSlash(rel))
}

func (d *Default) Open(rel string) (*os.File, error) {
	return os.Open(d.AbsPath(rel))
}

func (d *Default) Checksum(rel string) (int64, string, error) {
	f, err := d.Open(rel)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := md5.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", fmt.Errorf("checksum %s: %w", rel, err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

func (d *Default) AvailBytes(ctx context.Context) (int64, error) {
	return d.avail(ctx)
}

func (d *Default) statfsAvail(context.Context) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(d.node.Root, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", d.node.Root, err)
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}

// Fits keeps min_avail_gb free and stays under max_total_gb when set.
func (d *Default) Fits(ctx context.Context, size int64) (bool, error) {
	avail, err := d.avail(ctx)
	if err != nil {
		return false, err
	}
	if float64(avail-size) < d.node.MinAvailGB*gib {
		return false, nil
	}
	if d.node.MaxTotalGB > 0 {
		_, used, err := d.cat.CopiesOnNode(ctx, d.node.ID)
		if err != nil {
			return false, err
		}
		if float64(used+size) > d.node.MaxTotalGB*gib {
			return false, nil
		}
	}
	return true, nil
}

// Pull copies the requested file from a source node on the same host,
// verifying its MD5 sum against the catalog.
func (d *Default) Pull(ctx context.Context, req model.CopyRequest) error {
	logger := d.logger.With().Str(log.FieldFile, req.File.Path()).Int64(log.FieldRequest, req.ID).Logger()

	if have, err := d.cat.CopyOf(ctx, req.FileID, d.node.ID); err == nil && have.HasFile == model.HasFileYes {
		logger.Info().Msg("file already present; completing request")
		metrics.RecordPull(d.node.Name, metrics.ResultSkipped, 0)
		return d.cat.CompleteRequest(ctx, req.ID, time.Now())
	} else if err != nil && !errors.Is(err, duckdb.ErrNotFound) {
		return err
	}

	src, err := d.cat.NodeByID(ctx, req.NodeFromID)
	if err != nil {
		return fmt.Errorf("source node %d: %w", req.NodeFromID, err)
	}
	srcCopy, err := d.cat.CopyOf(ctx, req.FileID, src.ID)
	if err != nil && !errors.Is(err, duckdb.ErrNotFound) {
		return err
	}
	if err != nil || srcCopy.HasFile != model.HasFileYes {
		logger.Warn().Str("source", src.Name).Msg("cancelling pull: source has no good copy")
		metrics.RecordPull(d.node.Name, metrics.ResultSkipped, 0)
		return d.cat.CancelRequest(ctx, req.ID)
	}
	if !src.Active {
		logger.Debug().Str("source", src.Name).Msg("source node inactive; pull deferred")
		metrics.RecordPull(d.node.Name, metrics.ResultSkipped, 0)
		return nil
	}
	if src.Host != d.node.Host {
		logger.Warn().Str("source", src.Name).Str("source_host", src.Host).Msg("pull needs a remote transfer; deferred")
		metrics.RecordPull(d.node.Name, metrics.ResultSkipped, 0)
		return nil
	}

	ok, err := d.Fits(ctx, req.File.SizeB)
	if err != nil {
		return err
	}
	if !ok {
		logger.Warn().Int64("size_b", req.File.SizeB).Msg("not enough space for pull; deferred")
		metrics.RecordPull(d.node.Name, metrics.ResultSkipped, 0)
		return nil
	}

	start := time.Now()
	if err := d.cat.StartRequest(ctx, req.ID, start); err != nil {
		return err
	}

	srcPath := filepath.Join(src.Root, filepath.FromSlash(req.File.Path()))
	n, sum, err := copyFile(srcPath, d.AbsPath(req.File.Path()), req.File.MD5Sum)
	if err != nil {
		metrics.RecordPull(d.node.Name, metrics.ResultError, 0)
		return fmt.Errorf("pull %s: %w", req.File.Path(), err)
	}

	if _, err := d.cat.UpsertCopy(ctx, model.FileCopy{
		FileID:    req.FileID,
		NodeID:    d.node.ID,
		HasFile:   model.HasFileYes,
		WantsFile: model.WantsFileYes,
		Ready:     true,
		SizeB:     n,
	}); err != nil {
		return err
	}
	if err := d.cat.CompleteRequest(ctx, req.ID, time.Now()); err != nil {
		return err
	}

	metrics.RecordPull(d.node.Name, metrics.ResultOK, n)
	logger.Info().
		Str("source", src.Name).
		Str("md5", sum).
		Dur(log.FieldDuration, time.Since(start)).
		Msg("pull complete")
	return nil
}

// Delete removes each copy's file, prunes empty acquisition directories
// and marks the copy absent. A file already gone counts as deleted.
func (d *Default) Delete(ctx context.Context, copies []model.FileCopy) error {
	var errs []error
	for _, c := range copies {
		abs := d.AbsPath(c.File.Path())
		if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.logger.Error().Err(err).Str(log.FieldFile, c.File.Path()).Msg("delete failed")
			metrics.RecordDeletion(d.node.Name, metrics.ResultError)
			errs = append(errs, err)
			continue
		}
		d.pruneDirs(filepath.Dir(abs))

		if err := d.cat.SetCopyState(ctx, c.ID, model.HasFileNo, model.WantsFileNo, false); err != nil {
			errs = append(errs, err)
			continue
		}
		metrics.RecordDeletion(d.node.Name, metrics.ResultOK)
		d.logger.Info().Str(log.FieldFile, c.File.Path()).Msg("file deleted")
	}
	return errors.Join(errs...)
}

// pruneDirs removes empty directories from dir up to, but not including,
// the node root.
func (d *Default) pruneDirs(dir string) {
	root := filepath.Clean(d.node.Root)
	for dir != root && len(dir) > len(root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// copyFile copies src to dst through a temporary file, checking the MD5 sum
// when want is set. It returns the size and the computed sum.
func copyFile(src, dst, want string) (int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, "", err
	}
	tmp := dst + ".pull"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, "", err
	}

	h := md5.New()
	n, err := io.Copy(io.MultiWriter(out, h), in)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, "", err
	}

	sum := hex.EncodeToString(h.Sum(nil))
	if want != "" && sum != want {
		_ = os.Remove(tmp)
		return 0, "", fmt.Errorf("md5 mismatch: got %s, want %s", sum, want)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return 0, "", err
	}
	return n, sum, nil
}
