package domain

import (
	"fmt"
	"strings"
	"time"
)

// DocumentStatus represents the processing state of a stored document.
type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusReady      DocumentStatus = "ready"
	DocumentStatusReview     DocumentStatus = "review"
	DocumentStatusExported   DocumentStatus = "exported"
	DocumentStatusError      DocumentStatus = "error"
)

func (s DocumentStatus) String() string { return string(s) }

func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusUploaded, DocumentStatusProcessing, DocumentStatusReady,
		DocumentStatusReview, DocumentStatusExported, DocumentStatusError:
		return true
	}
	return false
}

// Document is the metadata record written after the object is stored.
type Document struct {
	ID        string
	OwnerID   string
	Filename  string
	Path      string
	Size      int64
	MimeType  string
	Status    DocumentStatus
	CreatedAt time.Time
}

func (d *Document) Validate() error {
	if strings.TrimSpace(d.OwnerID) == "" {
		return fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	if strings.TrimSpace(d.Filename) == "" {
		return fmt.Errorf("%w: filename is required", ErrValidation)
	}
	if strings.TrimSpace(d.Path) == "" {
		return fmt.Errorf("%w: path is required", ErrValidation)
	}
	if d.Size < 0 {
		return fmt.Errorf("%w: size must be >= 0", ErrValidation)
	}
	if !d.Status.IsValid() {
		return fmt.Errorf("%w: invalid document status %q", ErrValidation, d.Status)
	}
	return nil
}
