package store

import (
	"os"
	"path/filepath"
)

const (
	defaultDirPerm = 0o755
	dbFileName     = "weather.db"
)

type Config struct {
	// Path to the SQLite database. Empty disables the cache.
	Path string
}

func (c Config) Enabled() bool {
	return c.Path != ""
}

// DefaultPath returns the per-user cache location for the weather database.
func DefaultPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}

	return filepath.Join(dir, "monitord", dbFileName)
}
