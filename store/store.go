// Package store persists redaction inputs, outputs, and audit reports.
// Documents go to the filesystem; reports go to Postgres.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage reads source documents and writes redacted output.
type Storage interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
	Store(ctx context.Context, name string, data []byte) error
}

// FSStorage keeps documents under a root directory. Names are sanitized to
// bare file names so a caller cannot traverse out of the root.
type FSStorage struct {
	root string
}

func NewFSStorage(root string) (*FSStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("store: create root: %w", err)
	}
	return &FSStorage{root: root}, nil
}

func (s *FSStorage) Fetch(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(s.path(name))
}

func (s *FSStorage) Store(_ context.Context, name string, data []byte) error {
	// Write-then-rename so readers never observe a partial document.
	target := s.path(name)
	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (s *FSStorage) path(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == ".." || base == "/" {
		base = "unnamed"
	}
	return filepath.Join(s.root, base)
}
