package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq" // postgres driver
	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/djhieudonald74-stack/asset-registry/internal/store"
)

// execer is satisfied by both *sql.DB and *sql.Tx, the way the teacher's sqlite
// package defines its own execer interface (internal/storage/sqlite/*.go) so every
// query in this file works identically inside or outside an explicit transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ops implements store.Ops against whatever execer it was built with.
type ops struct {
	db          execer
	dialect     Dialect
	bindCeiling int
}

// Store is the top-level handle opened once at process start.
type Store struct {
	*ops
	sqldb *sql.DB
}

// txImpl is the transaction handle returned by Store.Begin.
type txImpl struct {
	*ops
	tx *sql.Tx
}

// Commit retries on a transient Postgres connection error (spec §5: "transient
// store errors are retried"), grounded on the teacher's withRetry.
func (t *txImpl) Commit() error {
	return withRetry(context.Background(), t.ops.dialect, t.tx.Commit)
}
func (t *txImpl) Rollback() error { return t.tx.Rollback() }

// OpenSQLite opens (and migrates) the pure-Go SQLite backend used for local
// development and the test suite. path may be ":memory:" for an ephemeral store.
func OpenSQLite(ctx context.Context, path string, bindCeiling int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}
	// SQLite allows exactly one writer; a single connection avoids
	// SQLITE_BUSY under concurrent ingest batches instead of relying on
	// busy_timeout tuning.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	s := &Store{
		ops:   &ops{db: db, dialect: DialectSQLite, bindCeiling: bindCeiling},
		sqldb: db,
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenPostgres opens (and migrates) the Postgres production backend.
func OpenPostgres(ctx context.Context, dsn string, bindCeiling int) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres database: %w", err)
	}
	s := &Store{
		ops:   &ops{db: db, dialect: DialectPostgres, bindCeiling: bindCeiling},
		sqldb: db,
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.sqldb.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("running migration statement %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Begin retries on a transient Postgres connection error (spec §5: "transient
// store errors are retried"), grounded on the teacher's withRetry.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	var tx *sql.Tx
	err := withRetry(ctx, s.ops.dialect, func() error {
		var beginErr error
		tx, beginErr = s.sqldb.BeginTx(ctx, nil)
		return beginErr
	})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &txImpl{
		ops: &ops{db: tx, dialect: s.ops.dialect, bindCeiling: s.ops.bindCeiling},
		tx:  tx,
	}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.sqldb.PingContext(ctx) }
func (s *Store) Close() error                   { return s.sqldb.Close() }

var _ store.Store = (*Store)(nil)
var _ store.Tx = (*txImpl)(nil)
