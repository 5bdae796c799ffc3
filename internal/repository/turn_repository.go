package repository

import (
	"fmt"

	"gorm.io/gorm"

	"chatrelay/internal/model"
)

type TurnRepository struct {
	db *gorm.DB
}

func NewTurnRepository(db *gorm.DB) *TurnRepository {
	return &TurnRepository{db: db}
}

func (r *TurnRepository) Create(turn *model.ChatTurn) error {
	if err := r.db.Create(turn).Error; err != nil {
		return fmt.Errorf("create turn failed: %w", err)
	}
	return nil
}

// ListRecentByUsername returns up to limit turns for the user, newest first.
func (r *TurnRepository) ListRecentByUsername(username string, limit int) ([]model.ChatTurn, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var turns []model.ChatTurn
	if err := r.db.Where("username = ?", username).Order("id DESC").Limit(limit).Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("list turns failed: %w", err)
	}
	return turns, nil
}

func (r *TurnRepository) DeleteByUsername(username string) error {
	if err := r.db.Where("username = ?", username).Delete(&model.ChatTurn{}).Error; err != nil {
		return fmt.Errorf("delete turns failed: %w", err)
	}
	return nil
}
