package repository

import (
	"context"

	"k-stock-insight/internal/entity"

	"gorm.io/gorm"
)

// SectorRepository manages sector definition rows, the ones without a ticker.
type SectorRepository interface {
	UpsertSectorDefinitions(ctx context.Context, sectors []entity.Sector) error
	GetSectorDefinitions(ctx context.Context) ([]entity.Sector, error)
}

type sectorRepository struct {
	db *gorm.DB
}

func NewSectorRepository(db *gorm.DB) SectorRepository {
	return &sectorRepository{db: db}
}

func (s *sectorRepository) UpsertSectorDefinitions(ctx context.Context, sectors []entity.Sector) error {
	for i := range sectors {
		sectors[i].Ticker = nil
	}
	return upsert(ctx, s.db, sectors,
		[]string{"sector_code", "ticker"},
		[]string{"sector_name", "updated_at"},
	)
}

func (s *sectorRepository) GetSectorDefinitions(ctx context.Context) ([]entity.Sector, error) {
	var sectors []entity.Sector
	if err := s.db.WithContext(ctx).
		Where("ticker IS NULL").
		Order("sector_code").
		Find(&sectors).Error; err != nil {
		return nil, err
	}
	return sectors, nil
}
