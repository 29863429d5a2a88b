// Package storage holds uploaded source files between the upload request
// and the import job that consumes them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/salesimport/internal/config"
)

// ErrNotFound is returned when a handle does not name a stored source.
var ErrNotFound = errors.New("source not found")

// Store saves, opens and deletes source files by opaque handle.
type Store interface {
	// Save stores r and returns a handle for it. name is a hint used to
	// make handles readable.
	Save(ctx context.Context, name string, r io.Reader) (string, error)

	// Open returns the stored content. It returns ErrNotFound when the
	// handle is unknown.
	Open(ctx context.Context, handle string) (io.ReadCloser, error)

	// Delete removes the source. Deleting a missing handle is not an error.
	Delete(ctx context.Context, handle string) error
}

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "local":
		return NewLocalStore(cfg.Dir)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// newHandle returns a unique, filesystem-safe handle that keeps the
// upload's base name for readability.
func newHandle(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "_" {
		base = "upload.csv"
	}
	return uuid.NewString() + "-" + base
}

// validHandle rejects handles that could escape the store's namespace.
func validHandle(handle string) error {
	if handle == "" || handle != filepath.Base(handle) || strings.HasPrefix(handle, ".") {
		return fmt.Errorf("invalid source handle %q", handle)
	}
	return nil
}
