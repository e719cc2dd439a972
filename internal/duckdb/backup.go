package duckdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const snapshotAlias = "catalog_snapshot"

// SnapshotTo writes a consistent copy of the catalog to dstPath as a
// standalone DuckDB file. It works for in-memory stores too. Writers are
// held off for the duration of the copy.
func (s *Store) SnapshotTo(ctx context.Context, dstPath string) error {
	if s.inTx {
		return errors.New("duckdb: snapshot inside a transaction")
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := dstPath + ".partial"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear stale snapshot: %w", err)
	}

	if err := s.copyDatabase(ctx, tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dstPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

func (s *Store) copyDatabase(ctx context.Context, target string) (err error) {
	defer s.lock()()

	// ATTACH is scoped to a connection; pin one for the whole sequence.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("snapshot conn: %w", err)
	}
	defer conn.Close()

	var source string
	if err := conn.QueryRowContext(ctx, "SELECT current_database()").Scan(&source); err != nil {
		return fmt.Errorf("resolve catalog name: %w", err)
	}

	attach := fmt.Sprintf("ATTACH %s AS %s", quoteLiteral(target), snapshotAlias)
	if _, err := conn.ExecContext(ctx, attach); err != nil {
		return fmt.Errorf("attach snapshot: %w", err)
	}
	defer func() {
		if _, derr := conn.ExecContext(context.WithoutCancel(ctx), "DETACH "+snapshotAlias); derr != nil && err == nil {
			err = fmt.Errorf("detach snapshot: %w", derr)
		}
	}()

	copyStmt := fmt.Sprintf("COPY FROM DATABASE %s TO %s", quoteIdent(source), snapshotAlias)
	if _, err := conn.ExecContext(ctx, copyStmt); err != nil {
		return fmt.Errorf("copy catalog: %w", err)
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
