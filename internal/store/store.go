// Package store implements types.Store over database/sql for SQLite and
// PostgreSQL. Reads run directly against the pool; writes run inside
// WithTx, which gives every mutation one ambient transaction.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/backlog/internal/store/driver"
	"github.com/mesh-intelligence/backlog/pkg/types"
)

//go:embed schema
var embedded embed.FS

// migrationPrefix names the migration files under schema/<dialect>/.
const migrationPrefix = "backlog"

// dbFile is the SQLite database file created inside Config.DataDir.
const dbFile = "backlog.db"

// timeLayout is a fixed-width RFC 3339 layout so that stored timestamps
// sort lexically in time order on both dialects.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Compile-time interface checks.
var (
	_ types.Store = (*Store)(nil)
	_ types.Tx    = (*txQueries)(nil)
)

// Store is a SQL-backed backlog store.
type Store struct {
	queries
	db     *sql.DB
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for transaction diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open validates cfg, opens the database and applies pending migrations.
// The SQLite backend keeps its file at <DataDir>/backlog.db and creates
// DataDir if needed.
func Open(ctx context.Context, cfg types.Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialect, err := driver.ParseDialect(cfg.Backend)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if dialect == driver.DialectSQLite && dsn == "" {
		dataDir := cfg.DataDir
		if dataDir == "" {
			dataDir = "."
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir %s: %w", dataDir, err)
		}
		dsn = filepath.Join(dataDir, dbFile)
	}

	db, err := driver.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
	}

	schema, err := fs.Sub(embedded, "schema")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := driver.Migrate(ctx, db, dialect, schema, migrationPrefix); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating %s store: %w", dialect, err)
	}

	return New(db, dialect, opts...), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, dialect driver.Dialect, opts ...Option) *Store {
	s := &Store{
		queries: queries{ex: db, dialect: dialect},
		db:      db,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dialect returns the SQL dialect of the underlying database.
func (s *Store) Dialect() driver.Dialect {
	return s.dialect
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise; fn's error is returned unchanged.
func (s *Store) WithTx(ctx context.Context, fn func(tx types.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", types.ErrStoreUnavailable, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&txQueries{queries{ex: tx, dialect: s.dialect}}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("transaction rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", types.ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the database. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// executor is satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds the read side of the store. Queries are written with ?
// placeholders and rebound for the dialect.
type queries struct {
	ex      executor
	dialect driver.Dialect
}

// txQueries adds the write side; it only exists inside WithTx.
type txQueries struct {
	queries
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.ex.ExecContext(ctx, q.dialect.Rebind(query), args...)
}

func (q *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.ex.QueryContext(ctx, q.dialect.Rebind(query), args...)
}

func (q *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.ex.QueryRowContext(ctx, q.dialect.Rebind(query), args...)
}

// execAffecting runs a statement and returns ErrNotFound when it touched no
// rows.
func (q *queries) execAffecting(ctx context.Context, op, query string, args ...any) error {
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return dbError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(op, err)
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// dbError classifies a database error into the store's sentinel errors.
func dbError(op string, err error) error {
	switch {
	case driver.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w: %w", op, types.ErrDuplicate, err)
	case driver.IsForeignKeyViolation(err):
		return fmt.Errorf("%s: %w: %w", op, types.ErrInvalidID, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, types.ErrStoreUnavailable, err)
	}
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// newUUID generates a UUID v7 for entity IDs.
func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// inClause returns "?, ?, ?" for n placeholders and the args as []any.
func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may use plain RFC 3339.
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	return t, err
}

// nowOr returns t, or the current time when t is zero.
func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return int64(*i)
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
