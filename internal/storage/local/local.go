// Package local stores case file content on a local disk, one file per
// object key below a root directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wouterc/sagsfiler/internal/metrics"
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath string
	// CreateDirs creates the root and per-case directories on demand.
	CreateDirs bool
}

// Backend is a storage.Backend on the local filesystem.
type Backend struct {
	root       string
	createDirs bool
}

// New opens the content root.
func New(cfg Config) (*Backend, error) {
	if cfg.RootPath == "" {
		return nil, errors.New("local storage: root path is required")
	}
	if err := ensureRoot(cfg.RootPath, cfg.CreateDirs); err != nil {
		return nil, err
	}
	return &Backend{root: cfg.RootPath, createDirs: cfg.CreateDirs}, nil
}

func ensureRoot(root string, create bool) error {
	info, err := os.Stat(root)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("local storage: %s is not a directory", root)
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist) && create:
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("local storage: create %s: %w", root, err)
		}
		return nil
	default:
		return fmt.Errorf("local storage: %w", err)
	}
}

// resolve maps an object key to a file below the root.
func (b *Backend) resolve(key string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(key))
	if key == "" || rel == "." || filepath.IsAbs(rel) || rel == ".." ||
		strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(b.root, rel), nil
}

func observe(op string, start time.Time, err *error) {
	metrics.RecordStorageOperation("local", op, time.Since(start), *err == nil)
}

// GetObject opens the content of key. A missing key yields an error
// wrapping fs.ErrNotExist.
func (b *Backend) GetObject(_ context.Context, key string) (_ io.ReadCloser, _ int64, err error) {
	defer observe("get", time.Now(), &err)

	p, err := b.resolve(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, 0, fmt.Errorf("object %s: %w", key, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("object %s: %w", key, err)
	}
	return f, st.Size(), nil
}

// PutObject writes body under key. Content is staged in a temporary file
// next to the target and renamed into place once complete, so readers
// never see a partial object. A negative size skips the length check.
func (b *Backend) PutObject(_ context.Context, key string, body io.Reader, size int64) (err error) {
	defer observe("put", time.Now(), &err)

	p, err := b.resolve(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if b.createDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("object %s: %w", key, err)
		}
	}

	staged, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("object %s: %w", key, err)
	}
	committed := false
	defer func() {
		if !committed {
			os.Remove(staged.Name())
		}
	}()

	written, err := io.Copy(staged, body)
	if err == nil {
		err = staged.Sync()
	}
	if cerr := staged.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("object %s: %w", key, err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("object %s: wrote %d of %d bytes", key, written, size)
	}

	if err := os.Rename(staged.Name(), p); err != nil {
		return fmt.Errorf("object %s: %w", key, err)
	}
	committed = true
	return nil
}

// DeleteObject removes key. A missing key is not an error.
func (b *Backend) DeleteObject(_ context.Context, key string) (err error) {
	defer observe("delete", time.Now(), &err)

	p, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("object %s: %w", key, err)
	}
	return nil
}

// ObjectExists reports whether key has content.
func (b *Backend) ObjectExists(_ context.Context, key string) (bool, error) {
	p, err := b.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("object %s: %w", key, err)
	}
}

// Type returns "local".
func (b *Backend) Type() string { return "local" }

// Close is a no-op.
func (b *Backend) Close() error { return nil }
