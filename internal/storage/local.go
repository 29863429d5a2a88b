package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore keeps sources as files in one directory. It suits a single
// host where the server and workers share a disk.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir if needed and returns a store rooted there.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		dir = "tmp"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Save writes r to a new file. A partial file is removed on failure.
func (s *LocalStore) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	handle := newHandle(name)
	path := filepath.Join(s.dir, handle)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("create source file: %w", err)
	}

	if _, err := io.Copy(f, &ctxReader{ctx: ctx, r: r}); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write source file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close source file: %w", err)
	}
	return handle, nil
}

// Open opens the stored file for reading.
func (s *LocalStore) Open(_ context.Context, handle string) (io.ReadCloser, error) {
	if err := validHandle(handle); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, handle))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", handle, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}
	return f, nil
}

// Delete removes the stored file if it exists.
func (s *LocalStore) Delete(_ context.Context, handle string) error {
	if err := validHandle(handle); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, handle))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete source file: %w", err)
	}
	return nil
}

// ctxReader stops a copy when ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
