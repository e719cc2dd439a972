package duckdb

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

// infoTables lists the info tables and the columns each may be written with.
var infoTables = map[string]struct {
	key     string
	columns map[string]bool
}{
	"corr_acq_info":              {"acq_id", cols("integration", "nfreq", "nprod")},
	"hfb_acq_info":               {"acq_id", cols("integration", "nfreq", "nsubfreq", "nbeam")},
	"rawadc_acq_info":            {"acq_id", cols("start_time")},
	"corr_file_info":             {"file_id", cols("start_time", "finish_time", "chunk_number", "freq_number")},
	"hfb_file_info":              {"file_id", cols("start_time", "finish_time", "chunk_number", "freq_number")},
	"rawadc_file_info":           {"file_id", cols("start_time", "finish_time")},
	"weather_file_info":          {"file_id", cols("start_time", "finish_time", "date")},
	"digitalgain_file_info":      {"file_id", cols("start_time", "finish_time")},
	"calibration_gain_file_info": {"file_id", cols("start_time", "finish_time")},
	"flag_input_file_info":       {"file_id", cols("start_time", "finish_time")},
}

func cols(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// InsertInfo writes one info record. An existing row for the same item is
// replaced.
func (s *Store) InsertInfo(ctx context.Context, rec model.InfoRecord) error {
	tbl, ok := infoTables[rec.Table]
	if !ok {
		return fmt.Errorf("unknown info table %q", rec.Table)
	}
	if rec.Key != tbl.key {
		return fmt.Errorf("info table %s is keyed by %s, not %s", rec.Table, tbl.key, rec.Key)
	}

	names := make([]string, 0, len(rec.Values))
	for name := range rec.Values {
		if !tbl.columns[name] {
			return fmt.Errorf("info table %s has no column %q", rec.Table, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	quoted := []string{tbl.key}
	args := []any{rec.ItemID}
	for _, name := range names {
		quoted = append(quoted, `"`+name+`"`)
		args = append(args, rec.Values[name])
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(quoted)), ", ")

	defer s.lock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if _, err := s.q.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, rec.Table, tbl.key), rec.ItemID); err != nil {
		return fmt.Errorf("clear %s row: %w", rec.Table, err)
	}
	_, err := s.q.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		rec.Table, strings.Join(quoted, ", "), placeholders), args...)
	if err != nil {
		return fmt.Errorf("insert %s row: %w", rec.Table, err)
	}
	return nil
}

// InfoRow returns the stored columns of an info row, or ErrNotFound.
func (s *Store) InfoRow(ctx context.Context, table string, itemID int64) (map[string]any, error) {
	tbl, ok := infoTables[table]
	if !ok {
		return nil, fmt.Errorf("unknown info table %q", table)
	}

	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.q.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s WHERE %s = ?`, table, tbl.key), itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(columns))
	for i, c := range columns {
		out[c] = values[i]
	}
	return out, nil
}
