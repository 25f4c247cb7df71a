package backend

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

// Filesystem implements Backend using the local filesystem.
// Writes are atomic using a temp file and rename pattern.
//
// Each key is hex-encoded into a file name and placed in a shard directory
// named after the first byte of the key's BLAKE3 hash, so arbitrary keys
// (including ones with path separators) map to flat, safe paths.
type Filesystem struct {
	root     string
	maxBytes int64

	mu   sync.Mutex
	used int64
}

// FilesystemOption configures a Filesystem backend.
type FilesystemOption func(*Filesystem)

// WithFilesystemMaxBytes caps the total size of stored values. Writes that
// would exceed the cap fail with ErrQuotaExceeded.
func WithFilesystemMaxBytes(n int64) FilesystemOption {
	return func(f *Filesystem) {
		f.maxBytes = n
	}
}

// NewFilesystem creates a new filesystem backend rooted at the given path.
// The directory will be created if it does not exist.
func NewFilesystem(root string, opts ...FilesystemOption) (*Filesystem, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}

	f := &Filesystem{root: absRoot}
	for _, opt := range opts {
		opt(f)
	}

	if f.maxBytes > 0 {
		used, err := f.diskUsage()
		if err != nil {
			return nil, fmt.Errorf("measuring disk usage: %w", err)
		}
		f.used = used
	}
	return f, nil
}

// Root returns the root directory path.
func (f *Filesystem) Root() string {
	return f.root
}

// Get retrieves the value stored at key.
func (f *Filesystem) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Set stores value at key using atomic write.
func (f *Filesystem) Set(_ context.Context, key string, value []byte) error {
	path := f.keyToPath(key)

	f.mu.Lock()
	defer f.mu.Unlock()

	var delta int64
	if f.maxBytes > 0 {
		delta = int64(len(value)) - f.sizeOf(path)
		if f.used+delta > f.maxBytes {
			return ErrQuotaExceeded
		}
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	// Write to temp file first
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// Clean up temp file on error
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(value); err != nil {
		return fmt.Errorf("writing data: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing file: %w", err)
	}

	// Close before rename
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	f.used += delta
	return nil
}

// Remove deletes the value at key.
func (f *Filesystem) Remove(_ context.Context, key string) error {
	path := f.keyToPath(key)

	f.mu.Lock()
	defer f.mu.Unlock()

	size := f.sizeOf(path)
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing file: %w", err)
	}
	if err == nil && f.maxBytes > 0 {
		f.used -= size
	}
	return nil
}

// Keys returns up to limit keys in lexical path order.
func (f *Filesystem) Keys(_ context.Context, limit int) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		// Skip temp files
		if strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		raw, err := hex.DecodeString(d.Name())
		if err != nil {
			return nil // not one of ours
		}
		keys = append(keys, string(raw))
		if full(len(keys), limit) {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return keys, nil
}

// Used returns the tracked size of stored values. It is only maintained when
// a byte cap is configured.
func (f *Filesystem) Used() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used
}

// keyToPath converts a key to a filesystem path.
func (f *Filesystem) keyToPath(key string) string {
	sum := blake3.Sum256([]byte(key))
	return filepath.Join(f.root, hex.EncodeToString(sum[:1]), hex.EncodeToString([]byte(key)))
}

func (f *Filesystem) sizeOf(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func (f *Filesystem) diskUsage() (int64, error) {
	var total int64
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

var _ Backend = (*Filesystem)(nil)
