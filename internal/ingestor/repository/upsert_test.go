package repository

import (
	"testing"
	"time"

	"k-stock-insight/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newDryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=test password=test dbname=test port=5432 sslmode=disable",
	}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db
}

func TestUpsertStatement_DailyPrices(t *testing.T) {
	db := newDryRunDB(t)
	records := []entity.DailyPrice{
		{Ticker: "005930", Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 1, Close: 2, Volume: 10},
		{Ticker: "005930", Date: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), Open: 2, High: 3, Low: 2, Close: 3, Volume: 20},
	}

	stmt := upsertStatement(db, &records,
		[]string{"ticker", "date"},
		[]string{"open", "high", "low", "close", "volume", "updated_at"},
	)
	require.NoError(t, stmt.Error)

	sql := stmt.Statement.SQL.String()
	assert.Contains(t, sql, `INSERT INTO "daily_prices"`)
	assert.Contains(t, sql, `ON CONFLICT ("ticker","date") DO UPDATE SET`)
	assert.Contains(t, sql, `"close"="excluded"."close"`)
	assert.Contains(t, sql, `"updated_at"="excluded"."updated_at"`)
	assert.NotContains(t, sql, `"created_at"="excluded"."created_at"`)
}

func TestUpsertStatement_InvestorTrendsKey(t *testing.T) {
	db := newDryRunDB(t)
	records := []entity.InvestorTrend{
		{Ticker: "005930", Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), InvestorType: entity.InvestorForeign, NetValue: -5},
	}

	stmt := upsertStatement(db, &records,
		[]string{"ticker", "date", "investor_type"},
		[]string{"buy_value", "sell_value", "net_value", "updated_at"},
	)
	require.NoError(t, stmt.Error)
	assert.Contains(t, stmt.Statement.SQL.String(), `ON CONFLICT ("ticker","date","investor_type") DO UPDATE SET`)
}
