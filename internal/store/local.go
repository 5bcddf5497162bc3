// Package store keeps decision records on disk and in OCI registries.
package store

import (
	"os"
	"path/filepath"

	"github.com/ogulcanaydogan/driftgate/internal/errors"
)

// DefaultRecordDir is where runs keep their decision records.
const DefaultRecordDir = ".driftgate/records"

// RecordPath returns the file a record with id is written to under dir.
func RecordPath(dir, id string) string {
	return filepath.Join(dir, id+".json")
}

func EnsureRecordDir(dir string) (string, error) {
	if dir == "" {
		dir = DefaultRecordDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create record store")
	}
	return dir, nil
}
