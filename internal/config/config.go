// Package config loads the optional pysqlite.toml file that overrides the
// engine's advisory-lock timeout and log level, grounded on
// recipes.go's toml.Unmarshal-from-optional-file pattern.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/firatkizilirmakk/vibecoded-pysqlite/internal/lock"
)

const fileName = "pysqlite.toml"

// Config holds the settings a db_dir/pysqlite.toml file may override.
type Config struct {
	LockTimeoutSeconds int    `toml:"lock_timeout_seconds"`
	LogLevel           string `toml:"log_level"`
}

// LockTimeout returns the configured lock timeout, or lock.DefaultTimeout
// if unset.
func (c Config) LockTimeout() time.Duration {
	if c.LockTimeoutSeconds <= 0 {
		return lock.DefaultTimeout
	}
	return time.Duration(c.LockTimeoutSeconds) * time.Second
}

// Load reads dbDir/pysqlite.toml if it exists, returning the zero Config
// (all defaults) if it does not.
func Load(dbDir string) (Config, error) {
	path := filepath.Join(dbDir, fileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", fileName, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", fileName, err)
	}
	return cfg, nil
}
