package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// ObjectStore is the outbound binary object storage port.
type ObjectStore interface {
	Put(ctx context.Context, objectPath string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, objectPath string) error
}

// CleanObjectPath normalises a slash separated object key and rejects traversal.
func CleanObjectPath(objectPath string) (string, error) {
	trimmed := strings.TrimSpace(objectPath)
	if trimmed == "" {
		return "", fmt.Errorf("object path is required")
	}

	cleaned := path.Clean("/" + trimmed)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("object path %q is empty after cleaning", objectPath)
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", fmt.Errorf("object path %q escapes its namespace", objectPath)
		}
	}

	return cleaned, nil
}
