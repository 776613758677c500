// Package sqlitepath resolves where ollamactl keeps its transcript database.
package sqlitepath

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvSQLite overrides the default database location.
const EnvSQLite = "OLLAMACTL_SQLITE"

// ResolveSQLitePath returns explicit when set, then $OLLAMACTL_SQLITE, then
// ~/.ollamactl/transcripts.db. The parent directory is created if needed.
func ResolveSQLitePath(explicit string) (string, error) {
	path := explicit
	if path == "" {
		path = os.Getenv(EnvSQLite)
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not find home directory: %w", err)
		}
		path = filepath.Join(home, ".ollamactl", "transcripts.db")
	}

	if path == ":memory:" {
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("could not create directory for %s: %w", path, err)
	}
	return path, nil
}
