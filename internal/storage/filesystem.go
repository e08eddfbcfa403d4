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

var _ ObjectStore = (*FilesystemStore)(nil)

// FilesystemStore keeps objects under a root directory, one file per object key.
type FilesystemStore struct {
	root string
}

func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &FilesystemStore{root: root}, nil
}

// Put writes through a temp file and hard-links it into place, so readers never see partial
// objects. The link fails if the key already exists; an existing object is never replaced.
func (s *FilesystemStore) Put(ctx context.Context, objectPath string, body io.Reader, size int64, contentType string) error {
	target, cleaned, err := s.resolve(objectPath)
	if err != nil {
		return &StorageError{Op: "put", Path: objectPath, Message: err.Error()}
	}
	if body == nil {
		return &StorageError{Op: "put", Path: cleaned, Message: "object body is required"}
	}
	if err := ctx.Err(); err != nil {
		return &StorageError{Op: "put", Path: cleaned, Message: "canceled before write", Cause: err}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return &StorageError{Op: "put", Path: cleaned, Message: "creating object directory", Cause: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return &StorageError{Op: "put", Path: cleaned, Message: "creating temp file", Cause: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	written, err := io.Copy(tmp, &contextReader{ctx: ctx, r: body})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return &StorageError{
			Op:        "put",
			Path:      cleaned,
			Message:   "writing object",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if size >= 0 && written != size {
		return &StorageError{
			Op:      "put",
			Path:    cleaned,
			Message: fmt.Sprintf("short write: got %d bytes, want %d", written, size),
		}
	}

	if err := os.Link(tmpName, target); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return &StorageError{Op: "put", Path: cleaned, Message: "object already exists", Cause: err}
		}
		return &StorageError{Op: "put", Path: cleaned, Message: "committing object", Cause: err}
	}
	return nil
}

func (s *FilesystemStore) Delete(ctx context.Context, objectPath string) error {
	target, cleaned, err := s.resolve(objectPath)
	if err != nil {
		return &StorageError{Op: "delete", Path: objectPath, Message: err.Error()}
	}
	if err := ctx.Err(); err != nil {
		return &StorageError{Op: "delete", Path: cleaned, Cause: err}
	}

	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StorageError{Op: "delete", Path: cleaned, Cause: err}
	}
	return nil
}

// Open returns the stored object; used by tooling and tests.
func (s *FilesystemStore) Open(objectPath string) (io.ReadCloser, error) {
	target, _, err := s.resolve(objectPath)
	if err != nil {
		return nil, err
	}
	return os.Open(target)
}

func (s *FilesystemStore) resolve(objectPath string) (string, string, error) {
	if s == nil || s.root == "" {
		return "", "", fmt.Errorf("filesystem store is not initialized")
	}
	cleaned, err := CleanObjectPath(objectPath)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), cleaned, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
