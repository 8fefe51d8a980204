package driver

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Migrate applies every pending migration found under <dialect>/ in schema.
// Files are named <prefix>_NNN.sql and applied in version order, each in its
// own transaction, and recorded in the _migrations table.
func Migrate(ctx context.Context, db *sql.DB, d Dialect, schema fs.FS, prefix string) error {
	createTable := `CREATE TABLE IF NOT EXISTS _migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	dir := string(d)
	entries, err := fs.ReadDir(schema, dir)
	if err != nil {
		return fmt.Errorf("read schema dir %s: %w", dir, err)
	}

	type migration struct {
		version int
		name    string
	}
	var pending []migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"_") || !strings.HasSuffix(name, ".sql") {
			continue
		}
		v, err := extractVersion(name, prefix+"_")
		if err != nil {
			return err
		}
		if !applied[v] {
			pending = append(pending, migration{version: v, name: name})
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })

	record := d.Rebind("INSERT INTO _migrations (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)")
	for _, m := range pending {
		content, err := fs.ReadFile(schema, path.Join(dir, m.name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", m.name, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		for _, stmt := range splitStatements(string(content)) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("apply migration %s: %w", m.name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, record, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.name, err)
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM _migrations")
	if err != nil {
		return nil, fmt.Errorf("query migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migrations: %w", err)
	}
	return applied, nil
}

// extractVersion extracts the version number from a migration filename,
// e.g. "backlog_002.sql" with prefix "backlog_" returns 2.
func extractVersion(name, prefix string) (int, error) {
	s := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".sql")
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("migration %s: bad version %q", name, s)
	}
	return v, nil
}

// splitStatements splits a migration script on semicolons that end a line.
// Line comments are dropped.
func splitStatements(script string) []string {
	var (
		stmts   []string
		current strings.Builder
	)
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		stmts = append(stmts, rest)
	}
	return stmts
}
