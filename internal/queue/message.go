package queue

import (
	"fmt"
	"strings"
	"time"
)

// DocumentUploadedMessage is emitted after a document's object and metadata are both stored.
type DocumentUploadedMessage struct {
	DocumentID    string    `json:"documentId"`
	OwnerID       string    `json:"ownerId"`
	Path          string    `json:"path"`
	Filename      string    `json:"filename"`
	Size          int64     `json:"size"`
	MimeType      string    `json:"mimeType,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	UploadedAt    time.Time `json:"uploadedAt"`
}

func (m DocumentUploadedMessage) Validate() error {
	if strings.TrimSpace(m.DocumentID) == "" {
		return fmt.Errorf("documentId is required")
	}
	if strings.TrimSpace(m.OwnerID) == "" {
		return fmt.Errorf("ownerId is required")
	}
	if strings.TrimSpace(m.Path) == "" {
		return fmt.Errorf("path is required")
	}
	if m.Size < 0 {
		return fmt.Errorf("invalid size %d", m.Size)
	}
	return nil
}
