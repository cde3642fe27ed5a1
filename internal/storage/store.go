package storage

import (
	"context"
	"errors"
	"fmt"

	"docuvault/config"
)

var ErrInvalidPath = errors.New("invalid object path")

// PutOptions describes upload options for object storage.
type PutOptions struct {
	ContentType string
}

// Store abstracts where object bytes live. dir groups everything held for
// one object so that RemoveAll drops the whole object.
type Store interface {
	// Put writes data as dir/name and returns the location to read it back from.
	Put(ctx context.Context, dir, name string, data []byte, opts PutOptions) (string, error)
	Get(ctx context.Context, location string) ([]byte, error)
	// RemoveAll deletes dir and everything below it. Missing dirs are not an error.
	RemoveAll(ctx context.Context, dir string) error
}

// NewStore builds the blob store selected by BLOB_BACKEND.
func NewStore(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.BlobBackend {
	case "disk", "":
		return NewDiskStore(cfg.BlobRoot)
	case "minio":
		return NewMinioStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
}
