package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// StorageError classifies object storage failures as transient/permanent.
type StorageError struct {
	Op         string
	Path       string
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *StorageError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 5)
	parts = append(parts, "storage error")

	if op := strings.TrimSpace(e.Op); op != "" {
		if e.Path != "" {
			parts = append(parts, fmt.Sprintf("%s %s", op, e.Path))
		} else {
			parts = append(parts, op)
		}
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *StorageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a storage error is worth retrying by the caller.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return storageErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
