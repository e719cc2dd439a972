// Package duckdb is the archive catalog: storage groups and nodes,
// acquisitions, files, copies, copy requests, the CHIME type tables and the
// per-type info tables, all held in one DuckDB database.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chime-experiment/alpenhorn-chime/internal/duckdb/migrate"
	"github.com/chime-experiment/alpenhorn-chime/internal/log"
	"github.com/chime-experiment/alpenhorn-chime/internal/model"
	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store manages the DuckDB database connection and provides query methods.
// A Store handed to an Atomic callback is bound to that transaction.
type Store struct {
	db           *sql.DB
	q            dbtx
	mu           *sync.RWMutex
	inTx         bool
	QueryTimeout time.Duration
	logger       zerolog.Logger
}

// NewStore opens or creates a DuckDB database and applies pending migrations.
// If dbPath is empty, an in-memory database is used.
// An optional queryTimeout can be passed; it defaults to 30s.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}
	if err := migrate.NewRunner(db).Run(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}

	qt := model.DefaultQueryTimeout
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}

	return &Store{
		db:           db,
		q:            db,
		mu:           &sync.RWMutex{},
		QueryTimeout: qt,
		logger:       log.WithComponent("catalog"),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access (migration status).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Atomic runs fn inside one transaction. The Store passed to fn issues every
// query on that transaction; returning an error rolls everything back.
// Nested calls reuse the outer transaction.
func (s *Store) Atomic(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	child := &Store{
		db:           s.db,
		q:            tx,
		mu:           s.mu,
		inTx:         true,
		QueryTimeout: s.QueryTimeout,
		logger:       s.logger,
	}
	if err := fn(child); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			s.logger.Warn().Err(rerr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// rlock takes the read lock unless the store is bound to a transaction,
// whose owner already holds the write lock.
func (s *Store) rlock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, s.QueryTimeout)
}
