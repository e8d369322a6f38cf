package strategy

import (
	"context"

	"k-stock-insight/internal/entity"
	"k-stock-insight/internal/ingestor/dto"
	"k-stock-insight/internal/ingestor/repository"
	"k-stock-insight/internal/ingestor/transform"
	"k-stock-insight/pkg/common"
)

// InvestorTrendStrategy ingests per-ticker investor net values. Each dated row
// becomes one record per investor group.
type InvestorTrendStrategy struct {
	krxRepository        repository.KRXRepository
	marketDataRepository repository.MarketDataRepository
}

func NewInvestorTrendStrategy(krxRepository repository.KRXRepository, marketDataRepository repository.MarketDataRepository) TableStrategy[entity.InvestorTrend] {
	return &InvestorTrendStrategy{
		krxRepository:        krxRepository,
		marketDataRepository: marketDataRepository,
	}
}

func (s *InvestorTrendStrategy) Table() string {
	return common.TableInvestorTrends
}

func (s *InvestorTrendStrategy) EntityKind() dto.EntityKind {
	return dto.EntityInstrument
}

func (s *InvestorTrendStrategy) Fetch(ctx context.Context, e dto.Entity, window dto.Window) ([]dto.RawRow, error) {
	return s.krxRepository.GetInvestorNetValues(ctx, e.Key, window.Start, window.End)
}

func (s *InvestorTrendStrategy) Transform(e dto.Entity, rows []dto.RawRow) ([]entity.InvestorTrend, []*dto.TransformWarning) {
	return transform.InvestorTrends(e.Key, rows, transform.InvestorColumns)
}

func (s *InvestorTrendStrategy) Upsert(ctx context.Context, records []entity.InvestorTrend) error {
	return s.marketDataRepository.UpsertInvestorTrends(ctx, records)
}
