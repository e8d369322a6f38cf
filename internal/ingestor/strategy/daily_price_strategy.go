package strategy

import (
	"context"

	"k-stock-insight/internal/entity"
	"k-stock-insight/internal/ingestor/dto"
	"k-stock-insight/internal/ingestor/repository"
	"k-stock-insight/internal/ingestor/transform"
	"k-stock-insight/pkg/common"
)

// DailyPriceStrategy ingests per-ticker OHLCV bars into daily_prices.
type DailyPriceStrategy struct {
	krxRepository        repository.KRXRepository
	marketDataRepository repository.MarketDataRepository
}

func NewDailyPriceStrategy(krxRepository repository.KRXRepository, marketDataRepository repository.MarketDataRepository) TableStrategy[entity.DailyPrice] {
	return &DailyPriceStrategy{
		krxRepository:        krxRepository,
		marketDataRepository: marketDataRepository,
	}
}

func (s *DailyPriceStrategy) Table() string {
	return common.TableDailyPrices
}

func (s *DailyPriceStrategy) EntityKind() dto.EntityKind {
	return dto.EntityInstrument
}

func (s *DailyPriceStrategy) Fetch(ctx context.Context, e dto.Entity, window dto.Window) ([]dto.RawRow, error) {
	return s.krxRepository.GetStockOHLCV(ctx, e.Key, window.Start, window.End)
}

func (s *DailyPriceStrategy) Transform(e dto.Entity, rows []dto.RawRow) ([]entity.DailyPrice, []*dto.TransformWarning) {
	return transform.DailyPrices(e.Key, rows, transform.StockPriceColumns)
}

func (s *DailyPriceStrategy) Upsert(ctx context.Context, records []entity.DailyPrice) error {
	return s.marketDataRepository.UpsertDailyPrices(ctx, records)
}
