package repository

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"k-stock-insight/internal/ingestor/config"
	"k-stock-insight/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingBody = `{"OutBlock_1":[],"output":[
	{"ISU_CD":"KR7005930003","ISU_SRT_CD":"005930","ISU_ABBRV":"삼성전자","LIST_DD":"1975/06/11"},
	{"ISU_CD":"KR7000660001","ISU_SRT_CD":"000660","ISU_ABBRV":"SK하이닉스","LIST_DD":"1996/12/26"}
]}`

func newTestKRX(t *testing.T, handler http.HandlerFunc) (KRXRepository, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, krxDataPath, r.URL.Path)
		assert.NoError(t, r.ParseForm())
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	cfg := &config.Config{
		Ingest: config.Ingest{Markets: []string{"KOSPI"}},
		KRX: config.KRX{
			BaseURL:             server.URL,
			UserAgent:           "test",
			MaxRequestPerMinute: 600000,
			Timeout:             5 * time.Second,
		},
	}
	return NewKRXRepository(cfg, logger.NewNop()), &calls
}

func TestKRXRepository_ListTickersCaches(t *testing.T) {
	repo, calls := newTestKRX(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, bldStockListing, r.Form.Get("bld"))
		assert.Equal(t, "STK", r.Form.Get("mktId"))
		_, _ = w.Write([]byte(listingBody))
	})

	listings, err := repo.ListTickers(context.Background(), "KOSPI")
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "005930", listings[0].Code)
	assert.Equal(t, "KR7005930003", listings[0].FullCode)
	assert.Equal(t, "삼성전자", listings[0].Name)
	assert.Equal(t, "KOSPI", listings[0].Market)
	require.NotNil(t, listings[0].ListedDate)
	assert.Equal(t, time.Date(1975, 6, 11, 0, 0, 0, 0, time.UTC), *listings[0].ListedDate)

	_, err = repo.ListTickers(context.Background(), "KOSPI")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestKRXRepository_UnknownMarket(t *testing.T) {
	repo, calls := newTestKRX(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := repo.ListTickers(context.Background(), "NASDAQ")
	assert.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestKRXRepository_GetStockOHLCV(t *testing.T) {
	repo, _ := newTestKRX(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Form.Get("bld") {
		case bldStockListing:
			_, _ = w.Write([]byte(listingBody))
		case bldStockOHLCV:
			assert.Equal(t, "KR7000660001", r.Form.Get("isuCd"))
			assert.Equal(t, "20250602", r.Form.Get("strtDd"))
			assert.Equal(t, "20250603", r.Form.Get("endDd"))
			_, _ = w.Write([]byte(`{"output":[
				{"TRD_DD":"2025/06/03","TDD_OPNPRC":"201,000","TDD_HGPRC":"205,500","TDD_LWPRC":"200,000","TDD_CLSPRC":"204,000","ACC_TRDVOL":"3,120,554"},
				{"TRD_DD":"2025/06/02","TDD_OPNPRC":"199,000","TDD_HGPRC":"202,000","TDD_LWPRC":"198,500","TDD_CLSPRC":"200,500","ACC_TRDVOL":2500000}
			]}`))
		default:
			t.Errorf("unexpected bld %s", r.Form.Get("bld"))
		}
	})

	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	rows, err := repo.GetStockOHLCV(context.Background(), "000660", start, start.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), rows[0].Date)
	assert.Equal(t, "204,000", rows[0].Fields["TDD_CLSPRC"])
	assert.Equal(t, "2500000", rows[1].Fields["ACC_TRDVOL"])
}

func TestKRXRepository_EmptySeriesIsNotAnError(t *testing.T) {
	repo, _ := newTestKRX(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Form.Get("bld") == bldStockListing {
			_, _ = w.Write([]byte(listingBody))
			return
		}
		_, _ = w.Write([]byte(`{"output":[]}`))
	})

	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	rows, err := repo.GetInvestorNetValues(context.Background(), "005930", now, now)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestKRXRepository_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>LOGOUT</html>`))
			},
		},
		{
			name: "bad date",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"output":[{"TRD_DD":"yesterday","CLSPRC_IDX":"1"}]}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, _ := newTestKRX(t, tt.handler)
			now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
			_, err := repo.GetIndexOHLCV(context.Background(), "1001", now, now)
			assert.Error(t, err)
		})
	}
}

func TestKRXRepository_UnknownTicker(t *testing.T) {
	repo, _ := newTestKRX(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingBody))
	})

	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	_, err := repo.GetStockOHLCV(context.Background(), "999999", now, now)
	assert.Error(t, err)
}

func TestKRXRepository_ListIndices(t *testing.T) {
	repo, _ := newTestKRX(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, bldIndexFinder, r.Form.Get("bld"))
		assert.Equal(t, "1", r.Form.Get("mktsel"))
		_, _ = w.Write([]byte(`{"block1":[
			{"full_code":"1","short_code":"001","codeName":"코스피"},
			{"full_code":"1","short_code":"028","codeName":"코스피 200"}
		]}`))
	})

	listings, err := repo.ListIndices(context.Background(), "KOSPI")
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "1001", listings[0].Code)
	assert.Equal(t, "코스피 200", listings[1].Name)
}
