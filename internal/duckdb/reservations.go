package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

// GetOrCreateTag returns the reservation tag called name, creating it if needed.
func (s *Store) GetOrCreateTag(ctx context.Context, name, notes string) (model.Tag, error) {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	t := model.Tag{Name: name}
	var n sql.NullString
	err := s.q.QueryRowContext(ctx, `SELECT id, notes FROM cfm_tag WHERE name = ?`, name).Scan(&t.ID, &n)
	if err == nil {
		t.Notes = n.String
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return t, err
	}
	if err := s.q.QueryRowContext(ctx,
		`INSERT INTO cfm_tag (name, notes) VALUES (?, ?) RETURNING id`, name, nullString(notes)).Scan(&t.ID); err != nil {
		return t, fmt.Errorf("insert cfm_tag %s: %w", name, err)
	}
	t.Notes = notes
	return t, nil
}

// Reserve pins a file to a node for a tag. Reserving twice is a no-op.
func (s *Store) Reserve(ctx context.Context, r model.Reservation) error {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_reservation WHERE tag_id = ? AND file_id = ? AND node_id = ?`,
		r.TagID, r.FileID, r.NodeID).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO file_reservation (tag_id, file_id, node_id) VALUES (?, ?, ?)`, r.TagID, r.FileID, r.NodeID)
	return err
}

// Release removes a reservation.
func (s *Store) Release(ctx context.Context, r model.Reservation) error {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx,
		`DELETE FROM file_reservation WHERE tag_id = ? AND file_id = ? AND node_id = ?`, r.TagID, r.FileID, r.NodeID)
	return err
}

// ReservationTags returns the names of the tags reserving a file on a node,
// ordered by tag id. The result is empty when the file is not reserved there.
func (s *Store) ReservationTags(ctx context.Context, fileID, nodeID int64) ([]string, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.q.QueryContext(ctx, `
		SELECT t.name FROM file_reservation r JOIN cfm_tag t ON t.id = r.tag_id
		WHERE r.file_id = ? AND r.node_id = ?
		ORDER BY t.id`, fileID, nodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
