package repository

import (
	"context"
	"fmt"
	"time"

	"k-stock-insight/internal/entity"
	"k-stock-insight/internal/ingestor/dto"
	"k-stock-insight/pkg/common"
	"k-stock-insight/pkg/utils"

	"gorm.io/gorm"
)

// tableEntityColumns whitelists the tables MaxDate and TableStats may touch,
// with the column that identifies an entity in each.
var tableEntityColumns = map[string]string{
	common.TableDailyPrices:    "ticker",
	common.TableInvestorTrends: "ticker",
	common.TableSectorPrices:   "sector_code",
}

// MarketDataRepository persists dated market records.
type MarketDataRepository interface {
	Ping(ctx context.Context) error
	UpsertDailyPrices(ctx context.Context, records []entity.DailyPrice) error
	UpsertInvestorTrends(ctx context.Context, records []entity.InvestorTrend) error
	UpsertSectorPrices(ctx context.Context, records []entity.SectorPrice) error
	// MaxDate returns the latest stored date of a table, optionally for one entity.
	// It returns nil when nothing is stored.
	MaxDate(ctx context.Context, table, entityKey string) (*time.Time, error)
	TableStats(ctx context.Context, table string) (*dto.TableStats, error)
}

type marketDataRepository struct {
	db *gorm.DB
}

func NewMarketDataRepository(db *gorm.DB) MarketDataRepository {
	return &marketDataRepository{db: db}
}

func (r *marketDataRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *marketDataRepository) UpsertDailyPrices(ctx context.Context, records []entity.DailyPrice) error {
	return upsert(ctx, r.db, records,
		[]string{"ticker", "date"},
		[]string{"open", "high", "low", "close", "volume", "updated_at"},
	)
}

func (r *marketDataRepository) UpsertInvestorTrends(ctx context.Context, records []entity.InvestorTrend) error {
	return upsert(ctx, r.db, records,
		[]string{"ticker", "date", "investor_type"},
		[]string{"buy_value", "sell_value", "net_value", "updated_at"},
	)
}

func (r *marketDataRepository) UpsertSectorPrices(ctx context.Context, records []entity.SectorPrice) error {
	return upsert(ctx, r.db, records,
		[]string{"sector_code", "date"},
		[]string{"sector_name", "open", "high", "low", "close", "volume", "updated_at"},
	)
}

func (r *marketDataRepository) MaxDate(ctx context.Context, table, entityKey string) (*time.Time, error) {
	column, ok := tableEntityColumns[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}

	var result struct {
		MaxDate *time.Time
	}
	query := fmt.Sprintf("SELECT MAX(date) AS max_date FROM %s", table)
	var args []interface{}
	if entityKey != "" {
		query += fmt.Sprintf(" WHERE %s = ?", column)
		args = append(args, entityKey)
	}
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&result).Error; err != nil {
		return nil, err
	}
	if result.MaxDate == nil {
		return nil, nil
	}
	return utils.ToPointer(utils.DateOf(*result.MaxDate)), nil
}

func (r *marketDataRepository) TableStats(ctx context.Context, table string) (*dto.TableStats, error) {
	column, ok := tableEntityColumns[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}

	var stats dto.TableStats
	query := fmt.Sprintf(`
		SELECT COUNT(*) AS total_rows,
		       COUNT(DISTINCT %s) AS distinct_entities,
		       MIN(date) AS min_date,
		       MAX(date) AS max_date
		FROM %s`, column, table)
	if err := r.db.WithContext(ctx).Raw(query).Scan(&stats).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}
