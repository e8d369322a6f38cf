package transform

import (
	"errors"
	"testing"
	"time"

	"k-stock-insight/internal/entity"
	"k-stock-insight/internal/ingestor/dto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int64
		missing bool
		wantErr bool
	}{
		{name: "plain", raw: "71500", want: 71500},
		{name: "thousands separators", raw: "1,234,500", want: 1234500},
		{name: "negative", raw: "-3,200", want: -3200},
		{name: "padded", raw: "  42 ", want: 42},
		{name: "fraction rounds", raw: "10.6", want: 11},
		{name: "dash", raw: "-", missing: true},
		{name: "empty", raw: "", missing: true},
		{name: "nan", raw: "NaN", missing: true},
		{name: "garbage", raw: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInt(tt.raw)
			switch {
			case tt.missing:
				assert.True(t, errors.Is(err, ErrMissingValue))
				assert.Zero(t, got)
			case tt.wantErr:
				assert.Error(t, err)
				assert.Zero(t, got)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseFloat(t *testing.T) {
	v, err := ParseFloat("2,645.32")
	require.NoError(t, err)
	assert.InDelta(t, 2645.32, v, 1e-9)

	_, err = ParseFloat("Inf")
	assert.Error(t, err)

	_, err = ParseFloat("-")
	assert.ErrorIs(t, err, ErrMissingValue)
}

func TestDailyPrices(t *testing.T) {
	rows := []dto.RawRow{
		{Date: day(2025, 1, 2), Fields: map[string]string{
			"TDD_OPNPRC": "53,400", "TDD_HGPRC": "54,100", "TDD_LWPRC": "52,900", "TDD_CLSPRC": "53,700", "ACC_TRDVOL": "12,345,678",
		}},
		{Date: day(2025, 1, 3), Fields: map[string]string{
			"TDD_OPNPRC": "-", "TDD_HGPRC": "54,500", "TDD_LWPRC": "53,000", "TDD_CLSPRC": "54,000", "ACC_TRDVOL": "9,000",
		}},
	}

	records, warnings := DailyPrices("005930", rows, StockPriceColumns)

	require.Len(t, records, 2)
	assert.Equal(t, entity.DailyPrice{
		Ticker: "005930", Date: day(2025, 1, 2),
		Open: 53400, High: 54100, Low: 52900, Close: 53700, Volume: 12345678,
	}, records[0])
	assert.Zero(t, records[1].Open)
	assert.Equal(t, int64(54000), records[1].Close)

	require.Len(t, warnings, 1)
	assert.Equal(t, "005930", warnings[0].Entity)
	assert.Equal(t, "2025-01-03", warnings[0].Date)
	assert.Equal(t, "TDD_OPNPRC", warnings[0].Field)
	assert.ErrorIs(t, warnings[0], ErrMissingValue)
}

func TestDailyPrices_MissingColumnWarns(t *testing.T) {
	rows := []dto.RawRow{{Date: day(2025, 1, 2), Fields: map[string]string{
		"TDD_OPNPRC": "1", "TDD_HGPRC": "1", "TDD_LWPRC": "1", "TDD_CLSPRC": "1",
	}}}

	records, warnings := DailyPrices("000660", rows, StockPriceColumns)

	require.Len(t, records, 1)
	assert.Zero(t, records[0].Volume)
	require.Len(t, warnings, 1)
	assert.Equal(t, "ACC_TRDVOL", warnings[0].Field)
}

func TestDailyPrices_DuplicateDatesKeepLast(t *testing.T) {
	fields := func(close string) map[string]string {
		return map[string]string{"TDD_OPNPRC": "1", "TDD_HGPRC": "1", "TDD_LWPRC": "1", "TDD_CLSPRC": close, "ACC_TRDVOL": "1"}
	}
	rows := []dto.RawRow{
		{Date: day(2025, 1, 2), Fields: fields("100")},
		{Date: day(2025, 1, 3), Fields: fields("200")},
		{Date: day(2025, 1, 2), Fields: fields("150")},
	}

	records, warnings := DailyPrices("005930", rows, StockPriceColumns)

	assert.Empty(t, warnings)
	require.Len(t, records, 2)
	assert.Equal(t, day(2025, 1, 2), records[0].Date)
	assert.Equal(t, int64(150), records[0].Close)
	assert.Equal(t, int64(200), records[1].Close)
}

func TestDailyPrices_Empty(t *testing.T) {
	records, warnings := DailyPrices("005930", nil, StockPriceColumns)
	assert.Empty(t, records)
	assert.Empty(t, warnings)
}

func TestSectorPrices(t *testing.T) {
	rows := []dto.RawRow{{Date: day(2025, 6, 2), Fields: map[string]string{
		"OPNPRC_IDX": "2,645.32", "HGPRC_IDX": "2,660.10", "LWPRC_IDX": "2,630.00", "CLSPRC_IDX": "2,655.55", "ACC_TRDVOL": "412,345",
	}}}

	records, warnings := SectorPrices("1001", "코스피", rows, IndexPriceColumns)

	assert.Empty(t, warnings)
	require.Len(t, records, 1)
	assert.Equal(t, "1001", records[0].SectorCode)
	assert.Equal(t, "코스피", records[0].SectorName)
	assert.InDelta(t, 2645.32, records[0].Open, 1e-9)
	assert.InDelta(t, 2655.55, records[0].Close, 1e-9)
	assert.Equal(t, int64(412345), records[0].Volume)
}

func TestInvestorTrends_ExpandsEveryGroup(t *testing.T) {
	rows := []dto.RawRow{{Date: day(2025, 6, 2), Fields: map[string]string{
		"TRDVAL1":    "-1,000",
		"TRDVAL2":    "200",
		"TRDVAL3":    "-",
		"TRDVAL4":    "800",
		"TRDVAL_TOT": "0",
	}}}

	records, warnings := InvestorTrends("005930", rows, InvestorColumns)

	require.Len(t, records, 4)
	byType := make(map[string]entity.InvestorTrend, len(records))
	for _, r := range records {
		assert.Equal(t, "005930", r.Ticker)
		assert.Equal(t, day(2025, 6, 2), r.Date)
		assert.Zero(t, r.BuyValue)
		assert.Zero(t, r.SellValue)
		byType[r.InvestorType] = r
	}
	assert.Equal(t, int64(-1000), byType[entity.InvestorInstitutionalTotal].NetValue)
	assert.Equal(t, int64(200), byType[entity.InvestorOtherCorporate].NetValue)
	assert.Equal(t, int64(0), byType[entity.InvestorIndividual].NetValue)
	assert.Equal(t, int64(800), byType[entity.InvestorForeign].NetValue)

	require.Len(t, warnings, 1)
	assert.Equal(t, "TRDVAL3", warnings[0].Field)
}

func TestInvestorTrends_BuySellColumnsWhenPresent(t *testing.T) {
	cols := []InvestorColumn{{Type: entity.InvestorForeign, Net: "NET", Buy: "BID", Sell: "ASK"}}
	rows := []dto.RawRow{
		{Date: day(2025, 6, 2), Fields: map[string]string{"NET": "50", "BID": "150", "ASK": "100"}},
		{Date: day(2025, 6, 3), Fields: map[string]string{"NET": "-10"}},
	}

	records, warnings := InvestorTrends("000660", rows, cols)

	assert.Empty(t, warnings)
	require.Len(t, records, 2)
	assert.Equal(t, int64(150), records[0].BuyValue)
	assert.Equal(t, int64(100), records[0].SellValue)
	assert.Equal(t, int64(50), records[0].NetValue)
	assert.Zero(t, records[1].BuyValue)
	assert.Zero(t, records[1].SellValue)
	assert.Equal(t, int64(-10), records[1].NetValue)
}
