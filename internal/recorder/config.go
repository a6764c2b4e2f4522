package recorder

import (
	"path/filepath"

	"codeberg.org/mutker/umctl/internal/errors"
)

const (
	defaultDirPerm      = 0o755
	defaultDBPath       = "/var/lib/umctl/readings.db"
	defaultBatchSize    = 20
	defaultBatchTimeout = 5
	backupDirName       = "backups"
)

type Config struct {
	DBPath  string
	Enabled bool
	// BatchSize rows are buffered before a write; BatchTimeout (seconds)
	// bounds how long a partial batch may wait. Zero disables the timer.
	BatchSize    int
	BatchTimeout int
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		Enabled:      false, // Disabled by default
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate the rest if recording is enabled
	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 1 {
		return errFactory.WithData(ErrInvalidBatch, c.BatchSize)
	}
	if c.BatchTimeout < 0 {
		return errFactory.WithData(ErrInvalidBatch, c.BatchTimeout)
	}

	return nil
}

func (c Config) backupDir() string {
	return filepath.Join(filepath.Dir(c.DBPath), backupDirName)
}
