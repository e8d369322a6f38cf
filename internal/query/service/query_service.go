package service

import (
	"context"
	"fmt"
	"time"

	"k-stock-insight/internal/query/config"
	"k-stock-insight/internal/query/dto"
	"k-stock-insight/internal/query/repository"
	"k-stock-insight/pkg/common"
	"k-stock-insight/pkg/logger"
)

const (
	recentPriceCount   = 20
	dashboardTopCount  = 10
	netPurchaseWindow  = 7
	healthStatusOK     = "healthy"
	healthStatusFailed = "unhealthy"
)

// QueryService defines the read operations exposed over HTTP.
type QueryService interface {
	Health(ctx context.Context) (*dto.HealthResponse, error)
	Stats(ctx context.Context) (*dto.StatsResponse, error)
	ListStocks(ctx context.Context, params dto.StockListParams) (*dto.StockListResponse, error)
	GetStockDetail(ctx context.Context, ticker string) (*dto.StockDetailResponse, error)
	GetStockPrices(ctx context.Context, ticker string, params dto.DateRangeParams) (*dto.StockPricesResponse, error)
	GetStockInvestorTrends(ctx context.Context, ticker string, params dto.DateRangeParams) (*dto.StockInvestorTrendsResponse, error)
	ListSectors(ctx context.Context) (*dto.SectorsResponse, error)
	Dashboard(ctx context.Context) (*dto.DashboardResponse, error)
}

type queryService struct {
	repo   repository.QueryRepository
	cfg    config.Query
	logger *logger.Logger
	now    func() time.Time
}

// NewQueryService creates a new query service.
func NewQueryService(repo repository.QueryRepository, cfg config.Query, logger *logger.Logger) QueryService {
	return &queryService{repo: repo, cfg: cfg, logger: logger, now: time.Now}
}

// Health reports whether the store answers. The response is filled in on failure too.
func (s *queryService) Health(ctx context.Context) (*dto.HealthResponse, error) {
	resp := &dto.HealthResponse{Timestamp: s.now()}
	if err := s.repo.Ping(ctx); err != nil {
		resp.Status = healthStatusFailed
		resp.Error = err.Error()
		return resp, err
	}
	resp.Status = healthStatusOK
	resp.Database = "connected"
	return resp, nil
}

func (s *queryService) Stats(ctx context.Context) (*dto.StatsResponse, error) {
	return s.repo.Stats(ctx)
}

func (s *queryService) ListStocks(ctx context.Context, params dto.StockListParams) (*dto.StockListResponse, error) {
	limit, err := s.limit(params.Limit)
	if err != nil {
		return nil, err
	}
	params.Limit = limit
	if params.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", dto.ErrInvalidParam)
	}
	if params.Market != "" && !common.IsKnownMarket(params.Market) {
		return nil, fmt.Errorf("%w: unknown market %q", dto.ErrInvalidParam, params.Market)
	}

	stocks, total, err := s.repo.ListStocks(ctx, params)
	if err != nil {
		return nil, err
	}
	return &dto.StockListResponse{Stocks: stocks, Total: total, Limit: params.Limit, Offset: params.Offset}, nil
}

func (s *queryService) GetStockDetail(ctx context.Context, ticker string) (*dto.StockDetailResponse, error) {
	stock, err := s.repo.GetStock(ctx, ticker)
	if err != nil {
		return nil, err
	}
	prices, err := s.repo.Prices(ctx, ticker, dto.DateRangeParams{Limit: recentPriceCount})
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.InvestorNetTotals(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return &dto.StockDetailResponse{Stock: *stock, RecentPrices: prices, InvestorTrends: totals}, nil
}

func (s *queryService) GetStockPrices(ctx context.Context, ticker string, params dto.DateRangeParams) (*dto.StockPricesResponse, error) {
	limit, err := s.limit(params.Limit)
	if err != nil {
		return nil, err
	}
	params.Limit = limit
	if err := checkRange(params); err != nil {
		return nil, err
	}

	prices, err := s.repo.Prices(ctx, ticker, params)
	if err != nil {
		return nil, err
	}
	return &dto.StockPricesResponse{Ticker: ticker, Prices: prices}, nil
}

// GetStockInvestorTrends returns every stored row in range; a Limit of 0 means no limit.
func (s *queryService) GetStockInvestorTrends(ctx context.Context, ticker string, params dto.DateRangeParams) (*dto.StockInvestorTrendsResponse, error) {
	if params.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", dto.ErrInvalidParam)
	}
	if err := checkRange(params); err != nil {
		return nil, err
	}

	trends, err := s.repo.InvestorTrends(ctx, ticker, params)
	if err != nil {
		return nil, err
	}
	return &dto.StockInvestorTrendsResponse{Ticker: ticker, InvestorTrends: trends}, nil
}

func (s *queryService) ListSectors(ctx context.Context) (*dto.SectorsResponse, error) {
	sectors, err := s.repo.LatestSectorPrices(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.SectorsResponse{Sectors: sectors}, nil
}

func (s *queryService) Dashboard(ctx context.Context) (*dto.DashboardResponse, error) {
	stats, err := s.repo.MarketStats(ctx)
	if err != nil {
		return nil, err
	}
	topVolume, err := s.repo.TopVolumeStocks(ctx, dashboardTopCount)
	if err != nil {
		return nil, err
	}
	topNet, err := s.repo.TopNetPurchases(ctx, netPurchaseWindow, dashboardTopCount)
	if err != nil {
		return nil, err
	}
	return &dto.DashboardResponse{MarketStats: *stats, TopVolumeStocks: topVolume, TopNetPurchases: topNet}, nil
}

// limit resolves a requested page size, where 0 selects the configured default.
func (s *queryService) limit(requested int) (int, error) {
	if requested == 0 {
		return s.cfg.DefaultLimit, nil
	}
	if requested < 0 || (s.cfg.MaxLimit > 0 && requested > s.cfg.MaxLimit) {
		return 0, fmt.Errorf("%w: limit must be between 1 and %d", dto.ErrInvalidParam, s.cfg.MaxLimit)
	}
	return requested, nil
}

func checkRange(params dto.DateRangeParams) error {
	if !params.StartDate.IsZero() && !params.EndDate.IsZero() && params.StartDate.After(params.EndDate) {
		return fmt.Errorf("%w: start_date is after end_date", dto.ErrInvalidParam)
	}
	return nil
}
