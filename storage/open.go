package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Open returns the backend named by kind ("memory", "leveldb" or "bolt")
// rooted at dir.
func Open(kind, dir string) (Database, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "memory", "mem":
		return NewMemDB(), nil
	case "leveldb", "level":
		return NewLevelDB(filepath.Join(dir, "leveldb"))
	case "bolt", "bbolt":
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return NewBoltDB(filepath.Join(dir, "qugate.db"))
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", kind)
	}
}
