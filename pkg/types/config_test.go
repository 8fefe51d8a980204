package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{"missing backend", Config{DataDir: "/var/lib/backlog"}, ErrBackendEmpty},
		{"mysql is not a backend", Config{Backend: "mysql", DSN: "root@/backlog"}, ErrBackendUnknown},
		{"sqlite in a data dir", Config{Backend: BackendSQLite, DataDir: "/var/lib/backlog"}, nil},
		{"sqlite defaults to the working directory", Config{Backend: BackendSQLite}, nil},
		{"sqlite with an explicit file dsn", Config{Backend: BackendSQLite, DSN: "/tmp/backlog.db"}, nil},
		{"postgres needs a dsn", Config{Backend: BackendPostgres, DataDir: "/ignored"}, ErrDSNRequired},
		{"postgres with dsn", Config{Backend: BackendPostgres, DSN: "postgres://backlog@localhost/backlog"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
