package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"chatrelay/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

// LatestContentByUsername returns the extracted text of the user's newest
// document. Highest auto-increment id wins, which is also the tie-break for
// concurrent uploads. Returns ("", false, nil) when the user has none.
func (r *DocumentRepository) LatestContentByUsername(username string) (string, bool, error) {
	var doc model.Document
	err := r.db.Where("username = ?", username).Order("id DESC").First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load latest document failed: %w", err)
	}
	return doc.Content, true, nil
}

func (r *DocumentRepository) DeleteByUsername(username string) error {
	if err := r.db.Where("username = ?", username).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete documents failed: %w", err)
	}
	return nil
}
