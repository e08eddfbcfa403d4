package domain

import (
	"fmt"
	"strings"
)

// DefaultMaxFileSize is the 50MB ceiling advertised to uploaders.
const DefaultMaxFileSize int64 = 50 * 1024 * 1024

// DefaultAllowedExtensions lists the file types accepted by the ingestion surface.
var DefaultAllowedExtensions = []string{"pdf", "mp3", "mp4", "csv", "docx", "doc", "txt", "wav"}

// IngestionPolicy decides which files may enter a batch.
type IngestionPolicy struct {
	AllowedExtensions []string
	// MaxFileSize of 0 disables the size check.
	MaxFileSize int64
}

func DefaultIngestionPolicy() IngestionPolicy {
	return IngestionPolicy{
		AllowedExtensions: DefaultAllowedExtensions,
		MaxFileSize:       DefaultMaxFileSize,
	}
}

// Check returns an ErrIngestionRejected error when the handle violates the policy.
func (p IngestionPolicy) Check(h FileHandle) error {
	if strings.TrimSpace(h.Name) == "" {
		return fmt.Errorf("%w: file name is required", ErrIngestionRejected)
	}
	if h.Source == nil {
		return fmt.Errorf("%w: %s has no content", ErrIngestionRejected, h.Name)
	}
	if h.Size < 0 {
		return fmt.Errorf("%w: %s has negative size", ErrIngestionRejected, h.Name)
	}

	if len(p.AllowedExtensions) > 0 {
		ext := h.Extension()
		allowed := false
		for _, candidate := range p.AllowedExtensions {
			if strings.EqualFold(strings.TrimPrefix(candidate, "."), ext) {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %s has unsupported type %q", ErrIngestionRejected, h.Name, ext)
		}
	}

	if p.MaxFileSize > 0 && h.Size > p.MaxFileSize {
		return fmt.Errorf("%w: %s exceeds %d bytes (got %d)", ErrIngestionRejected, h.Name, p.MaxFileSize, h.Size)
	}

	return nil
}

// Rejection pairs a refused file with the reason it was refused.
// Position is the file's offset in the slice passed to Filter.
type Rejection struct {
	Position int
	Name     string
	Reason   string
}

// Filter splits handles into accepted ones and rejections, preserving order.
func (p IngestionPolicy) Filter(handles []FileHandle) ([]FileHandle, []Rejection) {
	accepted := make([]FileHandle, 0, len(handles))
	var rejected []Rejection
	for i, h := range handles {
		if err := p.Check(h); err != nil {
			rejected = append(rejected, Rejection{Position: i, Name: h.Name, Reason: err.Error()})
			continue
		}
		accepted = append(accepted, h)
	}
	return accepted, rejected
}
