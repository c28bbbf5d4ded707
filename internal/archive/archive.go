// Package archive stores catalog manifests and artifacts as blobs.
package archive

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Read for a missing path.
var ErrNotFound = errors.New("archive: not found")

// Storage defines the interface for manifest and artifact backends.
// Paths are slash-separated and relative to the backend root.
type Storage interface {
	// Write stores data at the given path, replacing any previous content.
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path. Returns ErrNotFound if missing.
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths under the prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path. Deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path.
	Exists(ctx context.Context, path string) (bool, error)
}

// Backend types.
const (
	TypeLocalFS = "localfs"
	TypeS3      = "s3"
)

// Open builds a Storage for the given backend type.
func Open(kind, localPath string, s3cfg S3Config) (Storage, error) {
	switch kind {
	case "", TypeLocalFS:
		return NewLocalFS(localPath)
	case TypeS3:
		return NewS3(s3cfg)
	default:
		return nil, fmt.Errorf("unknown archive type %q", kind)
	}
}
