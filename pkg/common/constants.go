package common

const (
	TableStocks         = "stocks"
	TableDailyPrices    = "daily_prices"
	TableInvestorTrends = "investor_trends"
	TableSectors        = "sectors"
	TableSectorPrices   = "sector_prices"
	TableIngestionRuns  = "ingestion_runs"

	MarketKOSPI  = "KOSPI"
	MarketKOSDAQ = "KOSDAQ"

	RedisKeyFailedEntities = "ingest:failed:%s"
	RedisKeyRunLock        = "ingest:lock:%s"

	DateLayout = "2006-01-02"
)

// Markets lists the markets an Instrument may belong to.
var Markets = []string{MarketKOSPI, MarketKOSDAQ}

// IsKnownMarket reports whether market is KOSPI or KOSDAQ.
func IsKnownMarket(market string) bool {
	for _, m := range Markets {
		if m == market {
			return true
		}
	}
	return false
}
