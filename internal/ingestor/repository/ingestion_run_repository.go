package repository

import (
	"context"

	"k-stock-insight/internal/entity"

	"gorm.io/gorm"
)

type IngestionRunRepository interface {
	Create(ctx context.Context, run *entity.IngestionRun) error
}

type ingestionRunRepository struct {
	db *gorm.DB
}

func NewIngestionRunRepository(db *gorm.DB) IngestionRunRepository {
	return &ingestionRunRepository{db: db}
}

func (r *ingestionRunRepository) Create(ctx context.Context, run *entity.IngestionRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}
