package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileBlobStore keeps raw uploads on the local filesystem, addressed by
// relative paths under a root directory. Object storage backends can
// replace it behind the same interface.
type FileBlobStore struct {
	root string
}

func NewFileBlobStore(root string) (*FileBlobStore, error) {
	if root == "" {
		root = "storage"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %v", err)
	}
	return &FileBlobStore{root: root}, nil
}

func (s *FileBlobStore) Put(ctx context.Context, path string, data []byte) error {
	full := filepath.Join(s.root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %v", err)
	}

	// Write to a staging file and rename so a crash never leaves a
	// half-written blob at the final path.
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write blob: %v", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit blob: %v", err)
	}
	return nil
}

func (s *FileBlobStore) Get(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, path))
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %v", path, err)
	}
	return data, nil
}

func (s *FileBlobStore) Delete(ctx context.Context, path string) error {
	if err := os.Remove(filepath.Join(s.root, path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %v", path, err)
	}
	return nil
}
