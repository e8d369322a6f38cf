package repository

import (
	"context"
	"errors"
	"time"

	"k-stock-insight/internal/query/dto"
	"k-stock-insight/pkg/common"

	"gorm.io/gorm"
)

// sectorNameJoin picks one sector name per stock so membership rows never multiply the list.
const sectorNameJoin = `LEFT JOIN LATERAL (
	SELECT sector_name FROM sectors WHERE sectors.ticker = s.ticker ORDER BY sector_code LIMIT 1
) sec ON true`

// QueryRepository runs the read-only queries behind the query API.
type QueryRepository interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (*dto.StatsResponse, error)
	ListStocks(ctx context.Context, params dto.StockListParams) ([]dto.StockSummary, int64, error)
	GetStock(ctx context.Context, ticker string) (*dto.StockDetail, error)
	Prices(ctx context.Context, ticker string, params dto.DateRangeParams) ([]dto.PriceBar, error)
	InvestorNetTotals(ctx context.Context, ticker string) ([]dto.InvestorNetTotal, error)
	InvestorTrends(ctx context.Context, ticker string, params dto.DateRangeParams) ([]dto.InvestorTrendRow, error)
	LatestSectorPrices(ctx context.Context) ([]dto.SectorLatest, error)
	MarketStats(ctx context.Context) (*dto.MarketStats, error)
	TopVolumeStocks(ctx context.Context, limit int) ([]dto.TopVolumeStock, error)
	TopNetPurchases(ctx context.Context, days, limit int) ([]dto.TopNetPurchase, error)
}

type queryRepository struct {
	db *gorm.DB
}

// NewQueryRepository creates a new GORM-based query repository.
func NewQueryRepository(db *gorm.DB) QueryRepository {
	return &queryRepository{db: db}
}

func (r *queryRepository) Ping(ctx context.Context) error {
	var one int
	return r.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
}

func (r *queryRepository) Stats(ctx context.Context) (*dto.StatsResponse, error) {
	var stats dto.StatsResponse
	counts := []struct {
		table string
		dest  *int64
	}{
		{common.TableStocks, &stats.Stocks},
		{common.TableDailyPrices, &stats.DailyPrices},
		{common.TableSectorPrices, &stats.SectorPrices},
		{common.TableInvestorTrends, &stats.InvestorTrends},
	}
	for _, c := range counts {
		if err := r.db.WithContext(ctx).Table(c.table).Count(c.dest).Error; err != nil {
			return nil, err
		}
	}

	if err := r.db.WithContext(ctx).Table(common.TableDailyPrices).
		Distinct("ticker").Count(&stats.UniqueStocksWithPrices).Error; err != nil {
		return nil, err
	}

	var bounds struct {
		MinDate *time.Time
		MaxDate *time.Time
	}
	if err := r.db.WithContext(ctx).Table(common.TableDailyPrices).
		Select("MIN(date) AS min_date, MAX(date) AS max_date").Scan(&bounds).Error; err != nil {
		return nil, err
	}
	stats.DateRange = dto.DateRange{Start: bounds.MinDate, End: bounds.MaxDate}
	return &stats, nil
}

// stockFilter applies the market and search filters shared by the list and its count.
func stockFilter(db *gorm.DB, params dto.StockListParams) *gorm.DB {
	q := db.Table("stocks s")
	if params.Market != "" {
		q = q.Where("s.market = ?", params.Market)
	}
	if params.Search != "" {
		like := "%" + params.Search + "%"
		q = q.Where("s.name ILIKE ? OR s.ticker ILIKE ?", like, like)
	}
	return q
}

func stockListQuery(db *gorm.DB, params dto.StockListParams) *gorm.DB {
	return stockFilter(db, params).
		Select("s.ticker, s.name, s.market, sec.sector_name").
		Joins(sectorNameJoin).
		Order("s.ticker").
		Limit(params.Limit).
		Offset(params.Offset)
}

func (r *queryRepository) ListStocks(ctx context.Context, params dto.StockListParams) ([]dto.StockSummary, int64, error) {
	var total int64
	if err := stockFilter(r.db.WithContext(ctx), params).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	stocks := []dto.StockSummary{}
	if err := stockListQuery(r.db.WithContext(ctx), params).Find(&stocks).Error; err != nil {
		return nil, 0, err
	}
	return stocks, total, nil
}

func (r *queryRepository) GetStock(ctx context.Context, ticker string) (*dto.StockDetail, error) {
	var stock dto.StockDetail
	err := r.db.WithContext(ctx).Table("stocks s").
		Select("s.ticker, s.name, s.market, s.listed_date, sec.sector_name").
		Joins(sectorNameJoin).
		Where("s.ticker = ?", ticker).
		Take(&stock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dto.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &stock, nil
}

// dateRange narrows q to params' bounds and applies the row limit when set.
func dateRange(q *gorm.DB, params dto.DateRangeParams) *gorm.DB {
	if !params.StartDate.IsZero() {
		q = q.Where("date >= ?", params.StartDate)
	}
	if !params.EndDate.IsZero() {
		q = q.Where("date <= ?", params.EndDate)
	}
	if params.Limit > 0 {
		q = q.Limit(params.Limit)
	}
	return q
}

func pricesQuery(db *gorm.DB, ticker string, params dto.DateRangeParams) *gorm.DB {
	q := db.Table(common.TableDailyPrices).
		Select("date, open, high, low, close, volume").
		Where("ticker = ?", ticker).
		Order("date DESC")
	return dateRange(q, params)
}

func (r *queryRepository) Prices(ctx context.Context, ticker string, params dto.DateRangeParams) ([]dto.PriceBar, error) {
	prices := []dto.PriceBar{}
	if err := pricesQuery(r.db.WithContext(ctx), ticker, params).Find(&prices).Error; err != nil {
		return nil, err
	}
	return prices, nil
}

func (r *queryRepository) InvestorNetTotals(ctx context.Context, ticker string) ([]dto.InvestorNetTotal, error) {
	totals := []dto.InvestorNetTotal{}
	err := r.db.WithContext(ctx).Table(common.TableInvestorTrends).
		Select("investor_type, SUM(net_value) AS total_net").
		Where("ticker = ?", ticker).
		Group("investor_type").
		Order("total_net DESC").
		Find(&totals).Error
	if err != nil {
		return nil, err
	}
	return totals, nil
}

func (r *queryRepository) InvestorTrends(ctx context.Context, ticker string, params dto.DateRangeParams) ([]dto.InvestorTrendRow, error) {
	q := r.db.WithContext(ctx).Table(common.TableInvestorTrends).
		Select("date, investor_type, buy_value, sell_value, net_value").
		Where("ticker = ?", ticker).
		Order("date DESC, investor_type")

	trends := []dto.InvestorTrendRow{}
	if err := dateRange(q, params).Find(&trends).Error; err != nil {
		return nil, err
	}
	return trends, nil
}

func (r *queryRepository) LatestSectorPrices(ctx context.Context) ([]dto.SectorLatest, error) {
	sectors := []dto.SectorLatest{}
	err := r.db.WithContext(ctx).Raw(`
		SELECT * FROM (
			SELECT DISTINCT ON (sector_code) sector_code, sector_name, date, close, volume
			FROM sector_prices
			ORDER BY sector_code, date DESC
		) latest
		ORDER BY sector_name`).Scan(&sectors).Error
	if err != nil {
		return nil, err
	}
	return sectors, nil
}

func (r *queryRepository) MarketStats(ctx context.Context) (*dto.MarketStats, error) {
	var stats dto.MarketStats
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) AS total_stocks,
			COUNT(CASE WHEN market = ? THEN 1 END) AS kospi_stocks,
			COUNT(CASE WHEN market = ? THEN 1 END) AS kosdaq_stocks
		FROM stocks`, common.MarketKOSPI, common.MarketKOSDAQ).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *queryRepository) TopVolumeStocks(ctx context.Context, limit int) ([]dto.TopVolumeStock, error) {
	rows := []dto.TopVolumeStock{}
	err := r.db.WithContext(ctx).Raw(`
		SELECT s.ticker, s.name, dp.close, dp.volume, dp.date
		FROM daily_prices dp
		JOIN stocks s ON dp.ticker = s.ticker
		WHERE dp.date = (SELECT MAX(date) FROM daily_prices)
		ORDER BY dp.volume DESC
		LIMIT ?`, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// TopNetPurchases ranks (ticker, investor group) pairs by positive net buying
// over the last days days of stored investor data.
func (r *queryRepository) TopNetPurchases(ctx context.Context, days, limit int) ([]dto.TopNetPurchase, error) {
	rows := []dto.TopNetPurchase{}
	err := r.db.WithContext(ctx).Raw(`
		SELECT it.ticker, s.name, it.investor_type, SUM(it.net_value) AS total_net_value
		FROM investor_trends it
		JOIN stocks s ON it.ticker = s.ticker
		WHERE it.date >= (SELECT MAX(date) - ?::int FROM investor_trends)
		GROUP BY it.ticker, s.name, it.investor_type
		HAVING SUM(it.net_value) > 0
		ORDER BY total_net_value DESC
		LIMIT ?`, days, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
