package dto

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested ticker is not stored.
	ErrNotFound = errors.New("not found")
	// ErrInvalidParam marks a request the API rejects with 400.
	ErrInvalidParam = errors.New("invalid parameter")
)

// ErrorResponse represents a generic error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StockListParams filters and pages the stock list.
type StockListParams struct {
	Limit  int
	Offset int
	Market string
	Search string
}

// DateRangeParams bounds a per-ticker history query. Zero dates are unbounded.
type DateRangeParams struct {
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type DateRange struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

type StatsResponse struct {
	Stocks                 int64     `json:"stocks"`
	DailyPrices            int64     `json:"daily_prices"`
	SectorPrices           int64     `json:"sector_prices"`
	InvestorTrends         int64     `json:"investor_trends"`
	UniqueStocksWithPrices int64     `json:"unique_stocks_with_prices"`
	DateRange              DateRange `json:"date_range"`
}

type StockSummary struct {
	Ticker     string  `json:"ticker"`
	Name       string  `json:"name"`
	Market     string  `json:"market"`
	SectorName *string `json:"sector_name"`
}

type StockListResponse struct {
	Stocks []StockSummary `json:"stocks"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type StockDetail struct {
	Ticker     string     `json:"ticker"`
	Name       string     `json:"name"`
	Market     string     `json:"market"`
	ListedDate *time.Time `json:"listed_date"`
	SectorName *string    `json:"sector_name"`
}

type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   int64     `json:"open"`
	High   int64     `json:"high"`
	Low    int64     `json:"low"`
	Close  int64     `json:"close"`
	Volume int64     `json:"volume"`
}

// InvestorNetTotal is the summed net value of one investor group.
type InvestorNetTotal struct {
	InvestorType string `json:"investor_type"`
	TotalNet     int64  `json:"total_net"`
}

type StockDetailResponse struct {
	Stock          StockDetail        `json:"stock"`
	RecentPrices   []PriceBar         `json:"recent_prices"`
	InvestorTrends []InvestorNetTotal `json:"investor_trends"`
}

type StockPricesResponse struct {
	Ticker string     `json:"ticker"`
	Prices []PriceBar `json:"prices"`
}

type InvestorTrendRow struct {
	Date         time.Time `json:"date"`
	InvestorType string    `json:"investor_type"`
	BuyValue     int64     `json:"buy_value"`
	SellValue    int64     `json:"sell_value"`
	NetValue     int64     `json:"net_value"`
}

type StockInvestorTrendsResponse struct {
	Ticker         string             `json:"ticker"`
	InvestorTrends []InvestorTrendRow `json:"investor_trends"`
}

// SectorLatest is the most recent stored bar of a sector index.
type SectorLatest struct {
	SectorCode string    `json:"sector_code"`
	SectorName string    `json:"sector_name"`
	Date       time.Time `json:"date"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
}

type SectorsResponse struct {
	Sectors []SectorLatest `json:"sectors"`
}

type MarketStats struct {
	TotalStocks  int64 `json:"total_stocks"`
	KospiStocks  int64 `json:"kospi_stocks"`
	KosdaqStocks int64 `json:"kosdaq_stocks"`
}

type TopVolumeStock struct {
	Ticker string    `json:"ticker"`
	Name   string    `json:"name"`
	Close  int64     `json:"close"`
	Volume int64     `json:"volume"`
	Date   time.Time `json:"date"`
}

type TopNetPurchase struct {
	Ticker        string `json:"ticker"`
	Name          string `json:"name"`
	InvestorType  string `json:"investor_type"`
	TotalNetValue int64  `json:"total_net_value"`
}

type DashboardResponse struct {
	MarketStats     MarketStats      `json:"market_stats"`
	TopVolumeStocks []TopVolumeStock `json:"top_volume_stocks"`
	TopNetPurchases []TopNetPurchase `json:"top_net_purchases"`
}
