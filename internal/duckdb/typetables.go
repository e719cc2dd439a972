package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

const acqTypeColumns = `id, name, priority, info_class, info_config, notes`
const fileTypeColumns = `id, name, priority, info_class, info_config, pattern, notes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAcqType(row rowScanner) (model.AcqType, error) {
	var t model.AcqType
	var infoClass, infoConfig, notes sql.NullString
	if err := row.Scan(&t.ID, &t.Name, &t.Priority, &infoClass, &infoConfig, &notes); err != nil {
		return t, err
	}
	t.InfoClass = infoClass.String
	t.InfoConfig = infoConfig.String
	t.Notes = notes.String
	return t, nil
}

func scanFileType(row rowScanner) (model.FileType, error) {
	var t model.FileType
	var infoClass, infoConfig, pattern, notes sql.NullString
	if err := row.Scan(&t.ID, &t.Name, &t.Priority, &infoClass, &infoConfig, &pattern, &notes); err != nil {
		return t, err
	}
	t.InfoClass = infoClass.String
	t.InfoConfig = infoConfig.String
	t.Pattern = pattern.String
	t.Notes = notes.String
	return t, nil
}

// UpsertAcqType updates the AcqType with the same name, or inserts t
// (with its id) when no such type exists.
func (s *Store) UpsertAcqType(ctx context.Context, t model.AcqType) error {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	res, err := s.q.ExecContext(ctx,
		`UPDATE acq_type SET priority = ?, info_class = ?, info_config = ?, notes = ? WHERE name = ?`,
		t.Priority, nullString(t.InfoClass), nullString(t.InfoConfig), nullString(t.Notes), t.Name)
	if err != nil {
		return fmt.Errorf("update acq_type %s: %w", t.Name, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO acq_type (id, name, priority, info_class, info_config, notes) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Priority, nullString(t.InfoClass), nullString(t.InfoConfig), nullString(t.Notes))
	if err != nil {
		return fmt.Errorf("insert acq_type %s: %w", t.Name, err)
	}
	return nil
}

// UpsertFileType updates the FileType with the same name, or inserts t when
// absent. A pattern already present in the catalog is kept.
func (s *Store) UpsertFileType(ctx context.Context, t model.FileType) error {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	res, err := s.q.ExecContext(ctx,
		`UPDATE file_type SET priority = ?, info_class = ?, info_config = ?, notes = ?,
			pattern = COALESCE(pattern, ?) WHERE name = ?`,
		t.Priority, nullString(t.InfoClass), nullString(t.InfoConfig), nullString(t.Notes),
		nullString(t.Pattern), t.Name)
	if err != nil {
		return fmt.Errorf("update file_type %s: %w", t.Name, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO file_type (id, name, priority, info_class, info_config, pattern, notes) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Priority, nullString(t.InfoClass), nullString(t.InfoConfig), nullString(t.Pattern), nullString(t.Notes))
	if err != nil {
		return fmt.Errorf("insert file_type %s: %w", t.Name, err)
	}
	return nil
}

// SetFilePattern replaces the filename pattern of a FileType.
func (s *Store) SetFilePattern(ctx context.Context, fileTypeID int64, pattern string) error {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx, `UPDATE file_type SET pattern = ? WHERE id = ?`, nullString(pattern), fileTypeID)
	return err
}

// AcqTypeByName returns the AcqType called name.
func (s *Store) AcqTypeByName(ctx context.Context, name string) (model.AcqType, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	t, err := scanAcqType(s.q.QueryRowContext(ctx, `SELECT `+acqTypeColumns+` FROM acq_type WHERE name = ?`, name))
	return t, notFound(err)
}

// FileTypeByName returns the FileType called name.
func (s *Store) FileTypeByName(ctx context.Context, name string) (model.FileType, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	t, err := scanFileType(s.q.QueryRowContext(ctx, `SELECT `+fileTypeColumns+` FROM file_type WHERE name = ?`, name))
	return t, notFound(err)
}

// FileTypeByID returns the FileType with the given id.
func (s *Store) FileTypeByID(ctx context.Context, id int64) (model.FileType, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	t, err := scanFileType(s.q.QueryRowContext(ctx, `SELECT `+fileTypeColumns+` FROM file_type WHERE id = ?`, id))
	return t, notFound(err)
}

// FileTypesForAcqType lists the FileTypes supported by an AcqType, by id.
func (s *Store) FileTypesForAcqType(ctx context.Context, acqTypeID int64) ([]model.FileType, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.q.QueryContext(ctx, `
		SELECT ft.id, ft.name, ft.priority, ft.info_class, ft.info_config, ft.pattern, ft.notes
		FROM file_type ft
		JOIN acq_file_types aft ON aft.file_type_id = ft.id
		WHERE aft.acq_type_id = ?
		ORDER BY ft.id`, acqTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FileType
	for rows.Next() {
		t, err := scanFileType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetAcqFileType makes fileTypeID the only FileType of acqTypeID.
func (s *Store) SetAcqFileType(ctx context.Context, acqTypeID, fileTypeID int64) error {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM acq_file_types WHERE acq_type_id = ? AND file_type_id <> ?`, acqTypeID, fileTypeID); err != nil {
		return fmt.Errorf("prune acq_file_types: %w", err)
	}

	var n int64
	if err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM acq_file_types WHERE acq_type_id = ? AND file_type_id = ?`, acqTypeID, fileTypeID).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO acq_file_types (acq_type_id, file_type_id) VALUES (?, ?)`, acqTypeID, fileTypeID)
	return err
}

// AddAcqFileType adds one pairing without touching the others.
func (s *Store) AddAcqFileType(ctx context.Context, acqTypeID, fileTypeID int64) error {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var n int64
	if err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM acq_file_types WHERE acq_type_id = ? AND file_type_id = ?`, acqTypeID, fileTypeID).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO acq_file_types (acq_type_id, file_type_id) VALUES (?, ?)`, acqTypeID, fileTypeID)
	return err
}

// ListAcqTypes returns every AcqType ordered by id.
func (s *Store) ListAcqTypes(ctx context.Context) ([]model.AcqType, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.q.QueryContext(ctx, `SELECT `+acqTypeColumns+` FROM acq_type ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AcqType
	for rows.Next() {
		t, err := scanAcqType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListFileTypes returns every FileType ordered by id.
func (s *Store) ListFileTypes(ctx context.Context) ([]model.FileType, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.q.QueryContext(ctx, `SELECT `+fileTypeColumns+` FROM file_type ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FileType
	for rows.Next() {
		t, err := scanFileType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertInsts adds instruments that are not yet present (matched by id or
// name) and returns how many were inserted.
func (s *Store) InsertInsts(ctx context.Context, insts []model.ArchiveInst) (int, error) {
	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	inserted := 0
	for _, inst := range insts {
		var n int64
		if err := s.q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM archive_inst WHERE id = ? OR name = ?`, inst.ID, inst.Name).Scan(&n); err != nil {
			return inserted, err
		}
		if n > 0 {
			continue
		}
		if _, err := s.q.ExecContext(ctx,
			`INSERT INTO archive_inst (id, name, notes) VALUES (?, ?, ?)`,
			inst.ID, inst.Name, nullString(inst.Notes)); err != nil {
			return inserted, fmt.Errorf("insert archive_inst %s: %w", inst.Name, err)
		}
		inserted++
	}
	return inserted, nil
}

// InstByName returns the instrument called name.
func (s *Store) InstByName(ctx context.Context, name string) (model.ArchiveInst, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var inst model.ArchiveInst
	var notes sql.NullString
	err := s.q.QueryRowContext(ctx, `SELECT id, name, notes FROM archive_inst WHERE name = ?`, name).
		Scan(&inst.ID, &inst.Name, &notes)
	inst.Notes = notes.String
	return inst, notFound(err)
}
