// Package config loads backlog configuration from config.yaml and
// BACKLOG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/backlog/internal/paths"
	"github.com/mesh-intelligence/backlog/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	// FileName is the configuration file inside the config directory.
	FileName = "config.yaml"

	envPrefix = "BACKLOG"
)

// Config keys.
const (
	KeyBackend         = "backend"
	KeyDataDir         = "data_dir"
	KeyDSN             = "dsn"
	KeyServerAddr      = "server.addr"
	KeyReorderDebounce = "reorder.debounce"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"
)

// Defaults.
const (
	DefaultAddr      = ":8080"
	DefaultDebounce  = 1200 * time.Millisecond
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Config is the full backlog configuration.
type Config struct {
	Backend string        `mapstructure:"backend"`
	DataDir string        `mapstructure:"data_dir"`
	DSN     string        `mapstructure:"dsn"`
	Server  ServerConfig  `mapstructure:"server"`
	Reorder ReorderConfig `mapstructure:"reorder"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// ReorderConfig configures client-side reordering.
type ReorderConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: types.BackendSQLite,
		Server:  ServerConfig{Addr: DefaultAddr},
		Reorder: ReorderConfig{Debounce: DefaultDebounce},
		Log:     LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// Load reads config.yaml from configDir. A missing file is not an error.
// Environment variables override the file: BACKLOG_BACKEND,
// BACKLOG_DATA_DIR, BACKLOG_DSN, BACKLOG_SERVER_ADDR, and so on.
func Load(configDir string) (*Config, error) {
	v := viper.New()
	d := Default()
	v.SetDefault(KeyBackend, d.Backend)
	v.SetDefault(KeyDataDir, "")
	v.SetDefault(KeyDSN, "")
	v.SetDefault(KeyServerAddr, d.Server.Addr)
	v.SetDefault(KeyReorderDebounce, d.Reorder.Debounce)
	v.SetDefault(KeyLogLevel, d.Log.Level)
	v.SetDefault(KeyLogFormat, d.Log.Format)

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that have no safe fallback.
func (c *Config) Validate() error {
	if c.Reorder.Debounce <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyReorderDebounce, c.Reorder.Debounce)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%s must be text or json, got %q", KeyLogFormat, c.Log.Format)
	}
	return nil
}

// StoreConfig returns the store configuration, resolving the SQLite data
// directory with dataDirFlag taking precedence over the configured value.
func (c *Config) StoreConfig(dataDirFlag string) (types.Config, error) {
	cfg := types.Config{Backend: c.Backend, DSN: c.DSN}
	if c.Backend == types.BackendSQLite {
		dir, err := paths.ResolveDataDir(dataDirFlag, c.DataDir)
		if err != nil {
			return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.DataDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("invalid store config: %w", err)
	}
	return cfg, nil
}

// Logger builds a slog logger writing to w.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	return level, nil
}

// fileFormat is the layout written to config.yaml.
type fileFormat struct {
	Backend string `yaml:"backend"`
	DataDir string `yaml:"data_dir,omitempty"`
	DSN     string `yaml:"dsn,omitempty"`
	Server  struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Reorder struct {
		Debounce string `yaml:"debounce"`
	} `yaml:"reorder"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// WriteDefault creates configDir and writes a default config.yaml into it
// unless one exists. It reports whether a file was written.
func WriteDefault(configDir, dataDir string) (bool, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return false, fmt.Errorf("create config directory: %w", err)
	}
	path := filepath.Join(configDir, FileName)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	d := Default()
	var f fileFormat
	f.Backend = d.Backend
	f.DataDir = dataDir
	f.Server.Addr = d.Server.Addr
	f.Reorder.Debounce = d.Reorder.Debounce.String()
	f.Log.Level = d.Log.Level
	f.Log.Format = d.Log.Format

	data, err := yaml.Marshal(&f)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write config: %w", err)
	}
	return true, nil
}
