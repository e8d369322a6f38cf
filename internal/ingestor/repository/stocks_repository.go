package repository

import (
	"context"

	"k-stock-insight/internal/entity"

	"gorm.io/gorm"
)

type StocksRepository interface {
	UpsertStocks(ctx context.Context, stocks []entity.Stock) error
	GetStocks(ctx context.Context, markets []string) ([]entity.Stock, error)
}

type stocksRepository struct {
	db *gorm.DB
}

func NewStocksRepository(db *gorm.DB) StocksRepository {
	return &stocksRepository{db: db}
}

func (s *stocksRepository) UpsertStocks(ctx context.Context, stocks []entity.Stock) error {
	return upsert(ctx, s.db, stocks,
		[]string{"ticker"},
		[]string{"name", "market", "listed_date", "updated_at"},
	)
}

func (s *stocksRepository) GetStocks(ctx context.Context, markets []string) ([]entity.Stock, error) {
	var stocks []entity.Stock
	query := s.db.WithContext(ctx).Order("ticker")
	if len(markets) > 0 {
		query = query.Where("market IN ?", markets)
	}
	if err := query.Find(&stocks).Error; err != nil {
		return nil, err
	}
	return stocks, nil
}
