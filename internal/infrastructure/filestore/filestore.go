// Package filestore fetches raw export files from wherever the
// collection agents staged them.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/timberdayz/datahub/internal/domain/shared"
)

// FileStore reads raw export file bytes by path. Implementations must be
// safe for concurrent use.
type FileStore interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// LocalStore reads files from a directory tree on local disk.
type LocalStore struct {
	root string
}

// NewLocalStore creates a local-directory file store
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("local store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid local store root: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

var _ FileStore = (*LocalStore)(nil)

// Fetch reads a file relative to the store root. Paths escaping the root
// are rejected.
func (s *LocalStore) Fetch(_ context.Context, path string) ([]byte, error) {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	if !strings.HasPrefix(full, s.root+string(os.PathSeparator)) && full != s.root {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "Path %q escapes the store root", path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
