package store

import "database/sql"

// DB exposes the underlying pool to tests.
func DB(s *Store) *sql.DB {
	return s.db
}
