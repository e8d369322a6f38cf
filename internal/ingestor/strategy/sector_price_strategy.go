package strategy

import (
	"context"

	"k-stock-insight/internal/entity"
	"k-stock-insight/internal/ingestor/dto"
	"k-stock-insight/internal/ingestor/repository"
	"k-stock-insight/internal/ingestor/transform"
	"k-stock-insight/pkg/common"
)

// SectorPriceStrategy ingests sector index bars into sector_prices.
type SectorPriceStrategy struct {
	krxRepository        repository.KRXRepository
	marketDataRepository repository.MarketDataRepository
}

func NewSectorPriceStrategy(krxRepository repository.KRXRepository, marketDataRepository repository.MarketDataRepository) TableStrategy[entity.SectorPrice] {
	return &SectorPriceStrategy{
		krxRepository:        krxRepository,
		marketDataRepository: marketDataRepository,
	}
}

func (s *SectorPriceStrategy) Table() string {
	return common.TableSectorPrices
}

func (s *SectorPriceStrategy) EntityKind() dto.EntityKind {
	return dto.EntitySector
}

func (s *SectorPriceStrategy) Fetch(ctx context.Context, e dto.Entity, window dto.Window) ([]dto.RawRow, error) {
	return s.krxRepository.GetIndexOHLCV(ctx, e.Key, window.Start, window.End)
}

func (s *SectorPriceStrategy) Transform(e dto.Entity, rows []dto.RawRow) ([]entity.SectorPrice, []*dto.TransformWarning) {
	return transform.SectorPrices(e.Key, e.Name, rows, transform.IndexPriceColumns)
}

func (s *SectorPriceStrategy) Upsert(ctx context.Context, records []entity.SectorPrice) error {
	return s.marketDataRepository.UpsertSectorPrices(ctx, records)
}
