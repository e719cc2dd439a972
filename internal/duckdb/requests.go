package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

const requestColumns = `r.id, r.file_id, r.group_to_id, r.node_from_id, r.completed, r.cancelled,
	r.timestamp, r.transfer_started, r.transfer_completed`

func scanRequest(row rowScanner) (model.CopyRequest, error) {
	var r model.CopyRequest
	var ts, started, completed sql.NullTime
	var fsize, ftype sql.NullInt64
	var fmd5 sql.NullString
	var fregistered sql.NullTime
	err := row.Scan(&r.ID, &r.FileID, &r.GroupToID, &r.NodeFromID, &r.Completed, &r.Cancelled,
		&ts, &started, &completed,
		&r.File.ID, &r.File.AcqID, &r.File.AcqName, &r.File.Name, &fsize, &fmd5, &fregistered, &ftype)
	if err != nil {
		return r, err
	}
	r.Timestamp = ts.Time
	r.TransferStarted = fromNullTime(started)
	r.TransferCompleted = fromNullTime(completed)
	r.File.SizeB = fsize.Int64
	r.File.MD5Sum = fmd5.String
	r.File.Registered = fregistered.Time
	r.File.TypeID = ftype.Int64
	return r, nil
}

// CreateRequest asks for fileID to be copied from nodeFromID into groupToID.
func (s *Store) CreateRequest(ctx context.Context, fileID, groupToID, nodeFromID int64) (int64, error) {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var id int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO archive_file_copy_request (file_id, group_to_id, node_from_id, timestamp)
		VALUES (?, ?, ?, ?) RETURNING id`,
		fileID, groupToID, nodeFromID, time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert copy request: %w", err)
	}
	return id, nil
}

// RequestByID returns one copy request with its file.
func (s *Store) RequestByID(ctx context.Context, id int64) (model.CopyRequest, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	r, err := scanRequest(s.q.QueryRowContext(ctx, `SELECT `+requestColumns+`, `+fileColumns+`
		FROM archive_file_copy_request r
		JOIN archive_file f ON f.id = r.file_id
		JOIN archive_acq a ON a.id = f.acq_id
		WHERE r.id = ?`, id))
	return r, notFound(err)
}

// PendingRequests returns the open requests targeting a group, oldest first.
func (s *Store) PendingRequests(ctx context.Context, groupID int64) ([]model.CopyRequest, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.q.QueryContext(ctx, `SELECT `+requestColumns+`, `+fileColumns+`
		FROM archive_file_copy_request r
		JOIN archive_file f ON f.id = r.file_id
		JOIN archive_acq a ON a.id = f.acq_id
		WHERE r.group_to_id = ? AND NOT r.completed AND NOT r.cancelled
		ORDER BY r.timestamp, r.id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CopyRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CancelRequest marks a request cancelled.
func (s *Store) CancelRequest(ctx context.Context, id int64) error {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx, `UPDATE archive_file_copy_request SET cancelled = true WHERE id = ?`, id)
	return err
}

// StartRequest records the start of a transfer.
func (s *Store) StartRequest(ctx context.Context, id int64, at time.Time) error {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx,
		`UPDATE archive_file_copy_request SET transfer_started = ? WHERE id = ?`, at.UTC(), id)
	return err
}

// CompleteRequest marks a request done and records when the transfer ended.
func (s *Store) CompleteRequest(ctx context.Context, id int64, at time.Time) error {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx,
		`UPDATE archive_file_copy_request SET completed = true, transfer_completed = ? WHERE id = ?`, at.UTC(), id)
	return err
}

// DeleteClosedRequestsBefore removes completed or cancelled requests older
// than cutoff and returns how many were removed.
func (s *Store) DeleteClosedRequestsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	res, err := s.q.ExecContext(ctx,
		`DELETE FROM archive_file_copy_request WHERE (completed OR cancelled) AND timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
