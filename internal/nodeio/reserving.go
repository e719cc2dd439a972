package nodeio

import (
	"context"
	"errors"
	"fmt"

	"github.com/chime-experiment/alpenhorn-chime/internal/log"
	"github.com/chime-experiment/alpenhorn-chime/internal/metrics"
	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

// Reserving is LFSQuota restricted to reserved files: only files with a
// reservation on the node are pulled, and reserved files are never deleted.
type Reserving struct {
	*LFSQuota
}

// NewReserving returns the Reserving I/O class for node.
func NewReserving(node model.StorageNode, cat Catalog, opts Options) (NodeIO, error) {
	l, err := NewLFSQuota(node, cat, opts)
	if err != nil {
		return nil, err
	}
	return &Reserving{LFSQuota: l}, nil
}

// Pull cancels requests for files not reserved on the node.
func (r *Reserving) Pull(ctx context.Context, req model.CopyRequest) error {
	tags, err := r.cat.ReservationTags(ctx, req.FileID, r.node.ID)
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		r.logger.Warn().
			Str(log.FieldFile, req.File.Path()).
			Int64(log.FieldRequest, req.ID).
			Msg("cancelling pull of unreserved file")
		metrics.RecordPull(r.node.Name, metrics.ResultSkipped, 0)
		if err := r.cat.CancelRequest(ctx, req.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s on %s", ErrNotReserved, req.File.Path(), r.node.Name)
	}
	return r.LFSQuota.Pull(ctx, req)
}

// Delete keeps reserved copies, marking them wanted again, and deletes
// the rest.
func (r *Reserving) Delete(ctx context.Context, copies []model.FileCopy) error {
	var (
		rest []model.FileCopy
		errs []error
	)
	for _, c := range copies {
		tags, err := r.cat.ReservationTags(ctx, c.FileID, r.node.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(tags) == 0 {
			rest = append(rest, c)
			continue
		}

		r.logger.Warn().
			Str(log.FieldFile, c.File.Path()).
			Str(log.FieldTag, tags[0]).
			Msg("cancelling deletion of reserved file")
		if err := r.cat.SetCopyState(ctx, c.ID, c.HasFile, model.WantsFileYes, c.Ready); err != nil {
			errs = append(errs, err)
			continue
		}
		metrics.RecordDeletion(r.node.Name, metrics.ResultSkipped)
	}
	if len(rest) > 0 {
		errs = append(errs, r.LFSQuota.Delete(ctx, rest))
	}
	return errors.Join(errs...)
}
