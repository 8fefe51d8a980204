package driver

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"sqlite", DialectSQLite, false},
		{"sqlite3", DialectSQLite, false},
		{"postgres", DialectPostgres, false},
		{"PostgreSQL", DialectPostgres, false},
		{"pg", DialectPostgres, false},
		{"mysql", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDialect(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b IN (?, ?) AND c = '?'"

	assert.Equal(t, q, DialectSQLite.Rebind(q))
	assert.Equal(t,
		"SELECT * FROM t WHERE a = $1 AND b IN ($2, $3) AND c = '?'",
		DialectPostgres.Rebind(q))
}

func TestDriverName(t *testing.T) {
	assert.Equal(t, "sqlite", DialectSQLite.DriverName())
	assert.Equal(t, "pgx", DialectPostgres.DriverName())
}

func TestSQLiteDSN(t *testing.T) {
	assert.Contains(t, SQLiteDSN(":memory:"), "file::memory:?cache=shared")
	assert.Contains(t, SQLiteDSN("/tmp/x.db"), "file:/tmp/x.db?_pragma=foreign_keys(1)")
	assert.Contains(t, SQLiteDSN("/tmp/x.db"), "journal_mode(WAL)")
}

func TestConstraintClassification(t *testing.T) {
	assert.True(t, IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: sprint_memberships.story_id (2067)")))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(nil))

	assert.True(t, IsForeignKeyViolation(errors.New("FOREIGN KEY constraint failed (787)")))
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsForeignKeyViolation(errors.New("disk I/O error")))
}

func TestSplitStatements(t *testing.T) {
	script := `-- leading comment
CREATE TABLE a (
    id TEXT PRIMARY KEY
);

CREATE INDEX idx_a ON a(id);
`
	stmts := splitStatements(script)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Equal(t, "CREATE INDEX idx_a ON a(id);", stmts[1])
}

func TestMigrateAppliesOnce(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DialectSQLite, filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	schema := fstest.MapFS{
		"sqlite/app_001.sql": {Data: []byte("CREATE TABLE widgets (id TEXT PRIMARY KEY);\n")},
		"sqlite/app_002.sql": {Data: []byte("ALTER TABLE widgets ADD COLUMN name TEXT;\n")},
		"sqlite/other.txt":   {Data: []byte("ignored")},
	}

	require.NoError(t, Migrate(ctx, db, DialectSQLite, schema, "app"))
	require.NoError(t, Migrate(ctx, db, DialectSQLite, schema, "app"), "second run is a no-op")

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM _migrations").Scan(&count))
	assert.Equal(t, 2, count)

	_, err = db.ExecContext(ctx, "INSERT INTO widgets (id, name) VALUES ('w1', 'gear')")
	assert.NoError(t, err)
}

func TestMigrateBadVersion(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DialectSQLite, filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	schema := fstest.MapFS{
		"sqlite/app_x.sql": {Data: []byte("SELECT 1;")},
	}
	assert.Error(t, Migrate(ctx, db, DialectSQLite, schema, "app"))
}
