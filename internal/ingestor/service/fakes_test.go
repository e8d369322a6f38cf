package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"k-stock-insight/internal/entity"
	"k-stock-insight/internal/ingestor/config"
	"k-stock-insight/internal/ingestor/dto"
	"k-stock-insight/internal/ingestor/strategy"
	"k-stock-insight/pkg/utils"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testIngestConfig() config.Ingest {
	return config.Ingest{
		StartDate:               "2025-01-01",
		IncrementalLookbackDays: 30,
		BatchSize:               100,
		CheckpointEvery:         100,
		Workers:                 1,
		FetchTimeout:            5 * time.Second,
		CommitTimeout:           5 * time.Second,
		MaxRetries:              0,
		Markets:                 []string{"KOSPI", "KOSDAQ"},
		SectorMarket:            "KOSPI",
		TimeZone:                "Asia/Seoul",
	}
}

func ohlcvRow(date time.Time, close int) dto.RawRow {
	return dto.RawRow{Date: date, Fields: map[string]string{
		"TDD_OPNPRC": fmt.Sprint(close - 100),
		"TDD_HGPRC":  fmt.Sprint(close + 100),
		"TDD_LWPRC":  fmt.Sprint(close - 200),
		"TDD_CLSPRC": fmt.Sprint(close),
		"ACC_TRDVOL": "1,000",
	}}
}

// fakeKRX serves canned series per key. Errors win over rows.
type fakeKRX struct {
	mu        sync.Mutex
	rows      map[string][]dto.RawRow
	errs      map[string]error
	listings  map[string][]dto.Listing
	listErrs  map[string]error
	indices   []dto.Listing
	onFetch   func(key string)
	calls     []string
	windows   map[string]dto.Window
	failTimes map[string]int
}

func newFakeKRX() *fakeKRX {
	return &fakeKRX{
		rows:      map[string][]dto.RawRow{},
		errs:      map[string]error{},
		listings:  map[string][]dto.Listing{},
		listErrs:  map[string]error{},
		windows:   map[string]dto.Window{},
		failTimes: map[string]int{},
	}
}

func (f *fakeKRX) series(key string, start, end time.Time) ([]dto.RawRow, error) {
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.windows[key] = dto.Window{Start: start, End: end}
	hook := f.onFetch
	rows, err := f.rows[key], f.errs[key]
	if n := f.failTimes[key]; n > 0 {
		f.failTimes[key] = n - 1
		err = errors.New("transient upstream error")
	}
	f.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (f *fakeKRX) ListTickers(_ context.Context, market string) ([]dto.Listing, error) {
	if err := f.listErrs[market]; err != nil {
		return nil, err
	}
	return f.listings[market], nil
}

func (f *fakeKRX) ListIndices(_ context.Context, _ string) ([]dto.Listing, error) {
	return f.indices, nil
}

func (f *fakeKRX) GetStockOHLCV(_ context.Context, ticker string, start, end time.Time) ([]dto.RawRow, error) {
	return f.series(ticker, start, end)
}

func (f *fakeKRX) GetInvestorNetValues(_ context.Context, ticker string, start, end time.Time) ([]dto.RawRow, error) {
	return f.series(ticker, start, end)
}

func (f *fakeKRX) GetIndexOHLCV(_ context.Context, code string, start, end time.Time) ([]dto.RawRow, error) {
	return f.series(code, start, end)
}

func (f *fakeKRX) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

// fakeStore is a keyed in-memory store: upserts overwrite, never duplicate.
type fakeStore struct {
	mu          sync.Mutex
	prices      map[string]entity.DailyPrice
	batches     []int
	failBatches map[int]bool
	pingErr     error
	maxDates    map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		prices:      map[string]entity.DailyPrice{},
		failBatches: map[int]bool{},
		maxDates:    map[string]time.Time{},
	}
}

func priceKey(ticker string, date time.Time) string {
	return ticker + "|" + utils.FormatDate(date)
}

func (s *fakeStore) seed(records ...entity.DailyPrice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.prices[priceKey(r.Ticker, r.Date)] = r
	}
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) UpsertDailyPrices(_ context.Context, records []entity.DailyPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.batches)
	s.batches = append(s.batches, len(records))
	if s.failBatches[n] {
		return errors.New("deadlock detected")
	}
	for _, r := range records {
		s.prices[priceKey(r.Ticker, r.Date)] = r
	}
	return nil
}

func (s *fakeStore) UpsertInvestorTrends(context.Context, []entity.InvestorTrend) error {
	return nil
}

func (s *fakeStore) UpsertSectorPrices(context.Context, []entity.SectorPrice) error {
	return nil
}

func (s *fakeStore) MaxDate(_ context.Context, _ string, entityKey string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.maxDates[entityKey]; ok {
		return &d, nil
	}
	var latest *time.Time
	for _, p := range s.prices {
		if entityKey != "" && p.Ticker != entityKey {
			continue
		}
		if latest == nil || p.Date.After(*latest) {
			d := p.Date
			latest = &d
		}
	}
	return latest, nil
}

func (s *fakeStore) TableStats(context.Context, string) (*dto.TableStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &dto.TableStats{TotalRows: int64(len(s.prices))}
	tickers := map[string]struct{}{}
	for _, p := range s.prices {
		tickers[p.Ticker] = struct{}{}
		if stats.MinDate == nil || p.Date.Before(*stats.MinDate) {
			d := p.Date
			stats.MinDate = &d
		}
		if stats.MaxDate == nil || p.Date.After(*stats.MaxDate) {
			d := p.Date
			stats.MaxDate = &d
		}
	}
	stats.DistinctEntities = int64(len(tickers))
	return stats, nil
}

func (s *fakeStore) count(ticker string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.prices {
		if p.Ticker == ticker {
			n++
		}
	}
	return n
}

type fakeRegistry struct {
	mu      sync.Mutex
	entries map[string]dto.FailedEntity
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{entries: map[string]dto.FailedEntity{}}
}

func (r *fakeRegistry) Record(_ context.Context, _ string, failures []dto.FailedEntity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range failures {
		r.entries[f.Key] = f
	}
	return nil
}

func (r *fakeRegistry) List(context.Context, string) ([]dto.FailedEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]dto.FailedEntity, 0, len(r.entries))
	for _, f := range r.entries {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *fakeRegistry) Clear(_ context.Context, _ string, keys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.entries, k)
	}
	return nil
}

func (r *fakeRegistry) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type fakeLock struct {
	mu     sync.Mutex
	owners map[string]string
}

func newFakeLock() *fakeLock {
	return &fakeLock{owners: map[string]string{}}
}

func (l *fakeLock) Acquire(_ context.Context, table, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.owners[table]; held {
		return false, nil
	}
	l.owners[table] = owner
	return true, nil
}

func (l *fakeLock) Release(_ context.Context, table, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owners[table] != owner {
		return errors.New("not owner")
	}
	delete(l.owners, table)
	return nil
}

type fakeStocks struct {
	stocks   []entity.Stock
	upserted []entity.Stock
	err      error
}

func (s *fakeStocks) UpsertStocks(_ context.Context, stocks []entity.Stock) error {
	s.upserted = append(s.upserted, stocks...)
	return nil
}

func (s *fakeStocks) GetStocks(context.Context, []string) ([]entity.Stock, error) {
	return s.stocks, s.err
}

type fakeSectors struct {
	sectors  []entity.Sector
	upserted []entity.Sector
}

func (s *fakeSectors) UpsertSectorDefinitions(_ context.Context, sectors []entity.Sector) error {
	s.upserted = append(s.upserted, sectors...)
	return nil
}

func (s *fakeSectors) GetSectorDefinitions(context.Context) ([]entity.Sector, error) {
	return s.sectors, nil
}

type fakeRuns struct {
	runs []*entity.IngestionRun
}

func (r *fakeRuns) Create(_ context.Context, run *entity.IngestionRun) error {
	r.runs = append(r.runs, run)
	return nil
}

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) SendMessage(text string) error {
	n.messages = append(n.messages, text)
	return nil
}

func newDailyPriceStrategyForTest(f *serviceFixture) strategy.TableStrategy[entity.DailyPrice] {
	return strategy.NewDailyPriceStrategy(f.krx, f.store)
}
