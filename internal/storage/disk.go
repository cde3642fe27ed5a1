package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore keeps objects under a root directory, one directory per object.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &DiskStore{root: abs}, nil
}

func (s *DiskStore) Root() string {
	return s.root
}

// resolve joins rel onto the root and rejects anything escaping it.
func (s *DiskStore) resolve(rel string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if full == s.root || !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	return full, nil
}

func (s *DiskStore) Put(ctx context.Context, dir, name string, data []byte, _ PutOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: file name %q", ErrInvalidPath, name)
	}
	dirPath, err := s.resolve(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return "", err
	}
	full := filepath.Join(dirPath, name)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", err
	}
	return full, nil
}

func (s *DiskStore) Get(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := filepath.Clean(location)
	if !strings.HasPrefix(clean, s.root+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, location)
	}
	return os.ReadFile(clean)
}

func (s *DiskStore) RemoveAll(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dirPath, err := s.resolve(dir)
	if err != nil {
		return err
	}
	return os.RemoveAll(dirPath)
}
