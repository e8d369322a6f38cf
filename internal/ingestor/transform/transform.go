package transform

import (
	"k-stock-insight/internal/entity"
	"k-stock-insight/internal/ingestor/dto"
	"k-stock-insight/pkg/utils"
)

// DailyPrices converts a ticker's raw series into daily_prices records.
func DailyPrices(ticker string, rows []dto.RawRow, cols PriceColumns) ([]entity.DailyPrice, []*dto.TransformWarning) {
	var warnings []*dto.TransformWarning
	records := make([]entity.DailyPrice, 0, len(rows))
	for _, row := range dedupeByDate(rows) {
		r := newRowReader(ticker, row)
		records = append(records, entity.DailyPrice{
			Ticker: ticker,
			Date:   utils.DateOf(row.Date),
			Open:   r.Int(cols.Open),
			High:   r.Int(cols.High),
			Low:    r.Int(cols.Low),
			Close:  r.Int(cols.Close),
			Volume: r.Int(cols.Volume),
		})
		warnings = append(warnings, r.warnings...)
	}
	return records, warnings
}

// SectorPrices converts a sector index series into sector_prices records.
func SectorPrices(code, name string, rows []dto.RawRow, cols PriceColumns) ([]entity.SectorPrice, []*dto.TransformWarning) {
	var warnings []*dto.TransformWarning
	records := make([]entity.SectorPrice, 0, len(rows))
	for _, row := range dedupeByDate(rows) {
		r := newRowReader(code, row)
		records = append(records, entity.SectorPrice{
			SectorCode: code,
			Date:       utils.DateOf(row.Date),
			SectorName: name,
			Open:       r.Float(cols.Open),
			High:       r.Float(cols.High),
			Low:        r.Float(cols.Low),
			Close:      r.Float(cols.Close),
			Volume:     r.Int(cols.Volume),
		})
		warnings = append(warnings, r.warnings...)
	}
	return records, warnings
}

// InvestorTrends expands each dated row into one record per investor group.
func InvestorTrends(ticker string, rows []dto.RawRow, cols []InvestorColumn) ([]entity.InvestorTrend, []*dto.TransformWarning) {
	var warnings []*dto.TransformWarning
	records := make([]entity.InvestorTrend, 0, len(rows)*len(cols))
	for _, row := range dedupeByDate(rows) {
		r := newRowReader(ticker, row)
		date := utils.DateOf(row.Date)
		for _, col := range cols {
			records = append(records, entity.InvestorTrend{
				Ticker:       ticker,
				Date:         date,
				InvestorType: col.Type,
				BuyValue:     r.OptionalInt(col.Buy),
				SellValue:    r.OptionalInt(col.Sell),
				NetValue:     r.Int(col.Net),
			})
		}
		warnings = append(warnings, r.warnings...)
	}
	return records, warnings
}
