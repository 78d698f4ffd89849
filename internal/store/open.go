// ABOUTME: Backend selection for the configured database driver
// ABOUTME: Maps "sqlite", "bolt" and "memory" onto BlobStore implementations

package store

import "fmt"

// Supported database drivers
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
	DriverMemory = "memory"
)

// OpenBlobStore opens the backend named by driver at path.
// An empty driver selects SQLite.
func OpenBlobStore(driver, path string) (BlobStore, error) {
	switch driver {
	case "", DriverSQLite:
		return NewSQLiteBlobStore(path)
	case DriverBolt:
		return NewBoltBlobStore(path, "")
	case DriverMemory:
		return NewMemoryBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}
