package repository

import (
	"time"

	"github.com/kursadbilgin/docdrop/internal/domain"
)

// DocumentModel is the persistence model for the documents table.
type DocumentModel struct {
	ID             string                `gorm:"type:uuid;primaryKey"`
	OrganizationID string                `gorm:"type:varchar(255);not null"`
	Filename       string                `gorm:"type:text;not null"`
	FilePath       string                `gorm:"type:text;not null"`
	FileSize       int64                 `gorm:"not null"`
	MimeType       string                `gorm:"type:varchar(255)"`
	Status         domain.DocumentStatus `gorm:"type:varchar(20);not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (DocumentModel) TableName() string {
	return "documents"
}

func documentModelFromDomain(d *domain.Document) *DocumentModel {
	if d == nil {
		return nil
	}

	return &DocumentModel{
		ID:             d.ID,
		OrganizationID: d.OwnerID,
		Filename:       d.Filename,
		FilePath:       d.Path,
		FileSize:       d.Size,
		MimeType:       d.MimeType,
		Status:         d.Status,
		CreatedAt:      d.CreatedAt,
	}
}

func documentModelToDomain(m *DocumentModel) *domain.Document {
	if m == nil {
		return nil
	}

	return &domain.Document{
		ID:        m.ID,
		OwnerID:   m.OrganizationID,
		Filename:  m.Filename,
		Path:      m.FilePath,
		Size:      m.FileSize,
		MimeType:  m.MimeType,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
	}
}
