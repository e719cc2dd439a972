// Package migrate brings a catalog database up to the current schema. Each
// step is an embedded SQL file named NNN_description.sql; applied steps are
// recorded with a checksum so an edited step is caught instead of skipped.
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/chime-experiment/alpenhorn-chime/internal/log"
)

//go:embed migrations/*.sql
var embedded embed.FS

const ledgerDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       VARCHAR NOT NULL,
	checksum   VARCHAR NOT NULL,
	applied_at TIMESTAMP DEFAULT current_timestamp
)`

// Migration is one schema step.
type Migration struct {
	Version  int
	Name     string
	Checksum string
	body     string
}

// Status describes how far a database has been migrated.
type Status struct {
	Current int
	Pending []Migration
}

// Runner applies migrations to one database.
type Runner struct {
	db   *sql.DB
	fsys fs.FS
	dir  string
}

// NewRunner uses the migrations built into the binary.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db, fsys: embedded, dir: "migrations"}
}

func (r *Runner) load() ([]Migration, error) {
	entries, err := fs.ReadDir(r.fsys, r.dir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	var steps []Migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		num, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: name must be NNN_description.sql", name)
		}
		v, err := strconv.Atoi(num)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("migration %s: bad version %q", name, num)
		}
		body, err := fs.ReadFile(r.fsys, path.Join(r.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		sum := sha256.Sum256(body)
		steps = append(steps, Migration{Version: v, Name: name, Checksum: hex.EncodeToString(sum[:]), body: string(body)})
	}

	slices.SortFunc(steps, func(a, b Migration) int { return a.Version - b.Version })
	for i := 1; i < len(steps); i++ {
		if steps[i].Version == steps[i-1].Version {
			return nil, fmt.Errorf("migrations %s and %s share version %d", steps[i-1].Name, steps[i].Name, steps[i].Version)
		}
	}
	return steps, nil
}

// applied returns the checksum of every recorded step, keyed by version.
func (r *Runner) applied(ctx context.Context) (map[int]string, error) {
	if _, err := r.db.ExecContext(ctx, ledgerDDL); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[int]string)
	for rows.Next() {
		var v int
		var sum string
		if err := rows.Scan(&v, &sum); err != nil {
			return nil, err
		}
		done[v] = sum
	}
	return done, rows.Err()
}

// plan checks recorded steps against the known ones and returns those
// still to run.
func (r *Runner) plan(ctx context.Context) (Status, error) {
	steps, err := r.load()
	if err != nil {
		return Status{}, err
	}
	done, err := r.applied(ctx)
	if err != nil {
		return Status{}, err
	}

	var st Status
	for _, m := range steps {
		sum, ok := done[m.Version]
		switch {
		case !ok:
			st.Pending = append(st.Pending, m)
		case sum != m.Checksum:
			return Status{}, fmt.Errorf("migration %s was edited after it was applied", m.Name)
		default:
			delete(done, m.Version)
			st.Current = m.Version
		}
	}
	for v := range done {
		return Status{}, fmt.Errorf("database has migration %03d, which this build does not know; upgrade alpenhorn-chime", v)
	}
	if len(st.Pending) > 0 && st.Pending[0].Version < st.Current {
		return Status{}, fmt.Errorf("migration %s is older than applied version %d", st.Pending[0].Name, st.Current)
	}
	return st, nil
}

// Status reports the applied version and what is left to run.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	return r.plan(ctx)
}

// Run applies every pending step, each in its own transaction.
func (r *Runner) Run(ctx context.Context) error {
	st, err := r.plan(ctx)
	if err != nil {
		return err
	}
	logger := log.WithComponent("migrate")
	for _, m := range st.Pending {
		if err := r.apply(ctx, m); err != nil {
			return err
		}
		logger.Debug().Int("version", m.Version).Str("name", m.Name).Msg("applied migration")
	}
	return nil
}

func (r *Runner) apply(ctx context.Context, m Migration) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", m.Name, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, m.body); err != nil {
		return fmt.Errorf("%s: %w", m.Name, err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, checksum) VALUES (?, ?, ?)`,
		m.Version, m.Name, m.Checksum); err != nil {
		return fmt.Errorf("%s: record: %w", m.Name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", m.Name, err)
	}
	return nil
}
