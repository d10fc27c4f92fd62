package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"taskflow/internal/value"
)

// FileCache implements Cache using a flat directory, matching spec.md §6's
// "Cache layout": files named <fingerprint>.v1 hold the canonical JSON
// serialization of the result; writers go through a temp sibling named
// <fingerprint>.v1.tmp.<nonce> and atomically rename into place, so
// concurrent Store calls for the same key converge without locking.
type FileCache struct {
	Dir string
}

// NewFileCache creates a directory-backed cache rooted at dir. The
// directory is created lazily on first Store, not here, so constructing a
// FileCache never touches the filesystem.
func NewFileCache(dir string) *FileCache {
	return &FileCache{Dir: dir}
}

func (c *FileCache) entryPath(key string) string {
	return filepath.Join(c.Dir, key+".v1")
}

func (c *FileCache) Has(key string) (bool, error) {
	_, err := os.Stat(c.entryPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		// A read error degrades to "absent" per spec.md §4.2/§7 (CacheReadError
		// is swallowed), so this is intentionally not propagated as an error.
		return false, nil
	}
	return true, nil
}

func (c *FileCache) Lookup(key string) (value.Value, bool, error) {
	data, err := os.ReadFile(c.entryPath(key))
	if err != nil {
		return value.Value{}, false, nil
	}
	var v value.Value
	if err := json.Unmarshal(data, &v); err != nil {
		// A corrupt entry is also treated as a miss, never a fatal error.
		return value.Value{}, false, nil
	}
	return v, true, nil
}

func (c *FileCache) Store(key string, v value.Value) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("cache: creating directory: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: marshaling entry: %w", err)
	}

	nonce := uuid.New().String()
	tmpPath := filepath.Join(c.Dir, key+".v1.tmp."+nonce)
	if err := writeFileAtomic(tmpPath, c.entryPath(key), data); err != nil {
		return fmt.Errorf("cache: writing entry: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to tmpPath and renames it to finalPath. The
// rename is atomic on POSIX filesystems, so a reader never observes a
// partially-written entry and a crash mid-write leaves only an orphaned
// temp file rather than a corrupt cache entry.
func writeFileAtomic(tmpPath, finalPath string, data []byte) error {
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	removed := false
	defer func() {
		if !removed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	_ = f.Sync()
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return err
	}
	removed = true
	return nil
}
