package duckdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// maxQueryRows caps the rows returned by ExecuteQuery.
const maxQueryRows = 1000

// ErrNotReadOnly is returned for ad-hoc SQL that is anything but a single
// SELECT over the catalog's own tables and views.
var ErrNotReadOnly = errors.New("only a single SELECT or WITH query over catalog tables is allowed")

type parsedSQL struct {
	Error      bool              `json:"error"`
	Message    string            `json:"error_message"`
	Statements []json.RawMessage `json:"statements"`
}

// tableRef is the part of a serialized table reference the guard reads.
type tableRef struct {
	Catalog string `json:"catalog_name"`
	Schema  string `json:"schema_name"`
	Table   string `json:"table_name"`
}

// checkReadOnly parses query with DuckDB's own parser and walks the tree.
// json_serialize_sql only serializes SELECT statements. Within it, every
// table function is refused (they read files, URLs or other databases) and
// every named table must be a catalog table, a catalog view or a CTE of the
// query. A string literal in FROM is a file scan and names no catalog table.
func (s *Store) checkReadOnly(ctx context.Context, query string) error {
	var raw string
	if err := s.q.QueryRowContext(ctx, `SELECT json_serialize_sql(?::VARCHAR)::VARCHAR`, query).Scan(&raw); err != nil {
		return fmt.Errorf("parse query: %w", err)
	}
	var parsed parsedSQL
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return fmt.Errorf("parse query: %w", err)
	}
	switch {
	case parsed.Error:
		return fmt.Errorf("%w: %s", ErrNotReadOnly, parsed.Message)
	case len(parsed.Statements) != 1:
		return fmt.Errorf("%w: got %d statements", ErrNotReadOnly, len(parsed.Statements))
	}

	var tree any
	if err := json.Unmarshal(parsed.Statements[0], &tree); err != nil {
		return fmt.Errorf("parse query: %w", err)
	}
	ctes := make(map[string]bool)
	collectCTENames(tree, false, ctes)

	known, err := s.catalogRelations(ctx)
	if err != nil {
		return err
	}
	var current string
	if err := s.q.QueryRowContext(ctx, `SELECT current_database()`).Scan(&current); err != nil {
		return fmt.Errorf("resolve catalog name: %w", err)
	}

	return walkRefs(tree, func(kind string, node map[string]any) error {
		switch kind {
		case "TABLE_FUNCTION":
			return fmt.Errorf("%w: table functions are not allowed", ErrNotReadOnly)
		case "SHOW_REF":
			// DESCRIBE and SUMMARIZE name a table directly or wrap a query.
			if name, _ := node["table_name"].(string); name != "" && !known[strings.ToLower(name)] {
				return fmt.Errorf("%w: %q is not a catalog table", ErrNotReadOnly, name)
			}
		case "BASE_TABLE":
			var ref tableRef
			if b, err := json.Marshal(node); err != nil || json.Unmarshal(b, &ref) != nil {
				return fmt.Errorf("%w: unreadable table reference", ErrNotReadOnly)
			}
			name := strings.ToLower(ref.Table)
			local := (ref.Catalog == "" || strings.EqualFold(ref.Catalog, current)) &&
				(ref.Schema == "" || strings.EqualFold(ref.Schema, "main"))
			if ref.Catalog == "" && ref.Schema == "" && ctes[name] {
				return nil
			}
			if !local || !known[name] {
				return fmt.Errorf("%w: %q is not a catalog table", ErrNotReadOnly, ref.Table)
			}
		}
		return nil
	})
}

// walkRefs calls fn for every object in the tree that carries a "type".
func walkRefs(node any, fn func(kind string, node map[string]any) error) error {
	switch n := node.(type) {
	case map[string]any:
		if kind, ok := n["type"].(string); ok {
			if err := fn(kind, n); err != nil {
				return err
			}
		}
		for _, v := range n {
			if err := walkRefs(v, fn); err != nil {
				return err
			}
		}
	case []any:
		for _, v := range n {
			if err := walkRefs(v, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// collectCTENames gathers the names bound by WITH clauses anywhere in the
// tree. CTE maps serialize as lists of key/value pairs.
func collectCTENames(node any, inMap bool, names map[string]bool) {
	switch n := node.(type) {
	case map[string]any:
		if inMap {
			for _, kv := range [][2]string{{"key", "value"}, {"first", "second"}} {
				if k, ok := n[kv[0]].(string); ok && n[kv[1]] != nil {
					names[strings.ToLower(k)] = true
				}
			}
		}
		for k, v := range n {
			collectCTENames(v, inMap || k == "cte_map", names)
		}
	case []any:
		for _, v := range n {
			collectCTENames(v, inMap, names)
		}
	}
}

// catalogRelations lists the user tables and views of the catalog.
func (s *Store) catalogRelations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT table_name FROM duckdb_tables()
		WHERE database_name = current_database() AND schema_name = 'main'
		UNION ALL
		SELECT view_name FROM duckdb_views()
		WHERE database_name = current_database() AND schema_name = 'main' AND NOT internal`)
	if err != nil {
		return nil, fmt.Errorf("list catalog tables: %w", err)
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		known[strings.ToLower(name)] = true
	}
	return known, rows.Err()
}

// RunQuery runs read-only SQL against the catalog and returns the column
// names in select order with up to maxQueryRows rows keyed by column name.
// Byte columns come back as strings.
func (s *Store) RunQuery(ctx context.Context, query string) ([]string, []map[string]any, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil, fmt.Errorf("%w: empty query", ErrNotReadOnly)
	}

	defer s.rlock()()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if err := s.checkReadOnly(ctx, query); err != nil {
		return nil, nil, err
	}

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	out := make([]map[string]any, 0)
	cells := make([]any, len(cols))
	for rows.Next() {
		if len(out) == maxQueryRows {
			s.logger.Debug().Int("limit", maxQueryRows).Msg("query result truncated")
			break
		}
		dst := make([]any, len(cols))
		for i := range cells {
			dst[i] = &cells[i]
		}
		if err := rows.Scan(dst...); err != nil {
			return nil, nil, fmt.Errorf("scan row %d: %w", len(out), err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := cells[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = cells[i]
		}
		out = append(out, row)
	}
	return cols, out, rows.Err()
}

// ExecuteQuery is RunQuery without the column list.
func (s *Store) ExecuteQuery(ctx context.Context, query string) ([]map[string]any, error) {
	_, rows, err := s.RunQuery(ctx, query)
	return rows, err
}
