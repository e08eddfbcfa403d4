package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/docdrop/internal/domain"
	"gorm.io/gorm"
)

type DocumentRepository interface {
	Insert(ctx context.Context, d *domain.Document) (string, error)
	ExistsByPath(ctx context.Context, path string) (bool, error)
}

type GormDocumentRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormDocumentRepo(db *gorm.DB) *GormDocumentRepo {
	return &GormDocumentRepo{db: db, now: time.Now}
}

// Insert writes the metadata row and returns its id.
func (r *GormDocumentRepo) Insert(ctx context.Context, d *domain.Document) (string, error) {
	if d == nil {
		return "", domain.ErrValidation
	}
	if strings.TrimSpace(d.ID) == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = domain.DocumentStatusUploaded
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = r.now().UTC()
	}
	if err := d.Validate(); err != nil {
		return "", err
	}

	model := documentModelFromDomain(d)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", domain.ErrConflict
		}
		return "", err
	}
	*d = *documentModelToDomain(model)
	return d.ID, nil
}

func (r *GormDocumentRepo) ExistsByPath(ctx context.Context, path string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&DocumentModel{}).
		Where("file_path = ?", path).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
