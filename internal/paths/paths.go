// Package paths resolves the configuration and data directories of the
// backlog tools.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// appName names the per-user directories.
const appName = "backlog"

// CWD-relative directory names.
const (
	DefaultConfigDirName = ".backlog"
	DefaultDataDirName   = ".backlog-db"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "BACKLOG_CONFIG_DIR"
	EnvDataDir   = "BACKLOG_DATA_DIR"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
	getwd         func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
	getwd:         os.Getwd,
}

// UserConfigDir returns the per-user configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/backlog (fallback ~/.config/backlog)
// macOS:   ~/Library/Application Support/backlog
// Windows: %APPDATA%/backlog
func UserConfigDir() (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", appName), nil
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// ResolveConfigDir returns the configuration directory following the
// precedence chain: flag > BACKLOG_CONFIG_DIR > ./.backlog when it exists >
// UserConfigDir(). The result is absolute.
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := platformDir.getwd()
	if err != nil {
		return "", err
	}
	local := filepath.Join(cwd, DefaultConfigDirName)
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		return local, nil
	}
	return UserConfigDir()
}

// LocalConfigDir returns ./.backlog, the directory init creates when no
// override is given.
func LocalConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := platformDir.getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultConfigDirName), nil
}

// ResolveDataDir returns the SQLite data directory following the
// precedence chain: flag > configured value > BACKLOG_DATA_DIR >
// ./.backlog-db. The result is absolute.
func ResolveDataDir(flag, configured string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configured != "" {
		return filepath.Abs(configured)
	}
	if env := os.Getenv(EnvDataDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := platformDir.getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}
