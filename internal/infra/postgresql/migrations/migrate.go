package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/docdrop/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createDocumentsTable(),
	})

	return m.Migrate()
}

func createDocumentsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_documents",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DocumentModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_documents_organization_created ON documents (organization_id, created_at DESC)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_file_path ON documents (file_path)`,
				`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DocumentModel{})
		},
	}
}
