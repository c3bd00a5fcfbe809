package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// LocalStorage implements Storage on the local filesystem. References are
// keys under a data root directory. It backs development and testing and is
// embedded by S3Storage for the temp-file half of the port.
type LocalStorage struct {
	dataDir string
	tempDir string
}

// NewLocalStorage creates a LocalStorage with the given data and temp roots.
// Empty paths default to directories under os.TempDir(). Both directories
// are created if missing.
func NewLocalStorage(dataDir, tempDir string) (*LocalStorage, error) {
	if dataDir == "" {
		dataDir = filepath.Join(os.TempDir(), "clipflow", "data")
	}
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "clipflow", "tmp")
	}
	for _, dir := range []string{dataDir, tempDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}
	return &LocalStorage{dataDir: dataDir, tempDir: tempDir}, nil
}

// TempDir returns the temporary directory path.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// Fetch copies the referenced object into a temp file so the worker owns an
// exclusive copy for the duration of the job.
func (s *LocalStorage) Fetch(ctx context.Context, ref string) (string, error) {
	src, err := os.Open(filepath.Join(s.dataDir, filepath.Clean(ref))) // #nosec G304 - ref is an internal storage key
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return "", fmt.Errorf("open object %s: %w", ref, err)
	}
	defer func() { _ = src.Close() }()

	return s.SaveTemp(ctx, filepath.Base(ref), src)
}

// Publish copies a local file under the data root and returns its key.
func (s *LocalStorage) Publish(_ context.Context, key, localPath string) (string, error) {
	dst := filepath.Join(s.dataDir, filepath.Clean(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}

	in, err := os.Open(localPath) // #nosec G304 - path is provided by trusted internal code
	if err != nil {
		return "", fmt.Errorf("open result file: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) // #nosec G304 - dst is under the data root
	if err != nil {
		return "", fmt.Errorf("create object: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("close object: %w", err)
	}
	return key, nil
}

// SaveTemp saves data to a temporary file and returns the file path.
// The name is used as a base for the filename with a unique suffix.
func (s *LocalStorage) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.CreateTemp(s.tempDir, name+"_*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	fileName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return fileName, nil
}

// CleanupTemp removes the specified temporary files.
// It continues cleanup even if some files fail to delete,
// returning the first error encountered.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove temp file %s: %w", p, err)
			}
		}
	}
	return firstErr
}
