package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

const acqSummarySelect = `
	SELECT a.id, a.name, a.type_id, a.inst_id, a.comments,
		COALESCE(t.name, ''), COALESCE(i.name, ''),
		(SELECT COUNT(*) FROM archive_file f WHERE f.acq_id = a.id)
	FROM archive_acq a
	LEFT JOIN acq_type t ON t.id = a.type_id
	LEFT JOIN archive_inst i ON i.id = a.inst_id`

func scanAcqSummary(row rowScanner) (model.AcqSummary, error) {
	var a model.AcqSummary
	var typeID, instID sql.NullInt64
	var comments sql.NullString
	err := row.Scan(&a.ID, &a.Name, &typeID, &instID, &comments, &a.TypeName, &a.InstName, &a.FileCount)
	if err != nil {
		return a, err
	}
	a.TypeID = typeID.Int64
	a.InstID = instID.Int64
	a.Comment = comments.String
	return a, nil
}

// ListAcqs returns acquisitions newest name first, filtered by type and
// instrument name when set.
func (s *Store) ListAcqs(ctx context.Context, opts model.ListOpts) ([]model.AcqSummary, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var conditions []string
	var args []any
	if opts.Type != "" {
		conditions = append(conditions, "t.name = ?")
		args = append(args, opts.Type)
	}
	if opts.Inst != "" {
		conditions = append(conditions, "i.name = ?")
		args = append(args, opts.Inst)
	}
	query := acqSummarySelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY a.name DESC"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AcqSummary
	for rows.Next() {
		a, err := scanAcqSummary(rows)
		if err != nil {
			s.logger.Warn().Err(err).Msg("scan acq summary")
			continue
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DescribeAcq returns one acquisition with its type and instrument names.
func (s *Store) DescribeAcq(ctx context.Context, name string) (model.AcqSummary, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	a, err := scanAcqSummary(s.q.QueryRowContext(ctx, acqSummarySelect+" WHERE a.name = ?", name))
	return a, notFound(err)
}

// FilesInAcq returns the files of an acquisition ordered by name.
func (s *Store) FilesInAcq(ctx context.Context, acqID int64) ([]model.ArchiveFile, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.q.QueryContext(ctx, `SELECT `+fileColumns+`
		FROM archive_file f JOIN archive_acq a ON a.id = f.acq_id
		WHERE f.acq_id = ? ORDER BY f.name`, acqID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ArchiveFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// catalogTables is the allowlist used by TableRowCounts.
var catalogTables = []string{
	"storage_group", "storage_node", "archive_acq", "archive_file", "archive_file_copy",
	"archive_file_copy_request", "acq_type", "file_type", "archive_inst", "cfm_tag", "file_reservation",
}

// TableRowCounts returns the row count for each catalog table.
func (s *Store) TableRowCounts(ctx context.Context) (map[string]int64, error) {
	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	counts := make(map[string]int64, len(catalogTables))
	for _, table := range catalogTables {
		var count int64
		// Table names are constants, not user input.
		if err := s.q.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = count
	}
	return counts, nil
}
