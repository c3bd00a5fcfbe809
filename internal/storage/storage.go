// Package storage provides media transfer between the job's opaque
// input/output references and worker-local temporary files. It defines the
// Storage port plus local-disk and S3 implementations.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when an input reference does not resolve to an
// object. This is terminal; retrying will not make the source appear.
var ErrNotFound = errors.New("storage: object not found")

// Storage is the port for source fetch, result publication, and the
// worker-local temp files used in between.
type Storage interface {
	// Fetch resolves an input reference into a worker-local file and returns
	// its path. The caller owns the file and must clean it up.
	Fetch(ctx context.Context, ref string) (path string, err error)

	// Publish uploads a local file under the given key and returns the
	// stable output reference for it.
	Publish(ctx context.Context, key, localPath string) (ref string, err error)

	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// TempDir returns the root under which temporary files are created.
	TempDir() string
}
