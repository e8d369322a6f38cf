package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"k-stock-insight/internal/entity"
	"k-stock-insight/internal/ingestor/config"
	"k-stock-insight/internal/ingestor/dto"
	"k-stock-insight/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	table  string
	kind   dto.EntityKind
	result dto.TableResult
	seen   *RunContext
	calls  int32
}

func (s *stubRunner) Table() string              { return s.table }
func (s *stubRunner) EntityKind() dto.EntityKind { return s.kind }

func (s *stubRunner) Run(_ context.Context, rc *RunContext) dto.TableResult {
	atomic.AddInt32(&s.calls, 1)
	s.seen = rc
	out := s.result
	out.Table = s.table
	return out
}

type serviceFixture struct {
	cfg      *config.Config
	store    *fakeStore
	krx      *fakeKRX
	runs     *fakeRuns
	notifier *fakeNotifier
}

func newServiceFixture() *serviceFixture {
	krx := newFakeKRX()
	krx.listings["KOSPI"] = []dto.Listing{{Code: "005930", Name: "삼성전자", Market: "KOSPI"}}
	krx.indices = []dto.Listing{{Code: "1001", Name: "코스피"}}
	return &serviceFixture{
		cfg:      &config.Config{Ingest: testIngestConfig()},
		store:    newFakeStore(),
		krx:      krx,
		runs:     &fakeRuns{},
		notifier: &fakeNotifier{},
	}
}

func (f *serviceFixture) service(runners ...TableRunner) *ingestionService {
	f.cfg.Ingest.Markets = []string{"KOSPI"}
	svc := NewIngestionService(
		f.cfg,
		logger.NewNop(),
		f.store,
		f.runs,
		NewUniverseResolver(f.krx, &fakeStocks{}, &fakeSectors{}, logger.NewNop()),
		runners,
		f.notifier,
	).(*ingestionService)
	svc.now = func() time.Time {
		return time.Date(2025, 6, 4, 9, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestIngestionService_ConnectionErrorIsFatal(t *testing.T) {
	f := newServiceFixture()
	f.store.pingErr = errors.New("dial tcp: connection refused")
	runner := &stubRunner{table: "daily_prices", kind: dto.EntityInstrument}

	summary, err := f.service(runner).Update(context.Background())

	assert.Nil(t, summary)
	var connErr *dto.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Zero(t, atomic.LoadInt32(&runner.calls))
	assert.Empty(t, f.runs.runs)
}

func TestIngestionService_UpdateRunsEveryTable(t *testing.T) {
	f := newServiceFixture()
	prices := &stubRunner{table: "daily_prices", kind: dto.EntityInstrument, result: dto.TableResult{
		Status: entity.RunStatusPartial, EntitiesFailed: 1, RecordsWritten: 10, FailedEntities: []string{"999999"},
	}}
	sectorPrices := &stubRunner{table: "sector_prices", kind: dto.EntitySector, result: dto.TableResult{
		Status: entity.RunStatusSkipped, SkipReason: "up to date",
	}}

	summary, err := f.service(prices, sectorPrices).Update(context.Background())

	require.NoError(t, err)
	assert.Equal(t, dto.ModeIncremental, summary.Mode)
	assert.Equal(t, entity.RunStatusPartial, summary.Status)
	assert.Equal(t, time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), summary.Yesterday, "yesterday is taken in Seoul time")
	assert.Equal(t, 1, summary.Instruments)
	assert.Equal(t, 1, summary.Sectors)
	assert.Equal(t, int64(10), summary.RecordsWritten())
	assert.Equal(t, 1, summary.EntitiesFailed())
	require.Len(t, summary.Tables, 2)
	assert.Equal(t, "daily_prices", summary.Tables[0].Table)
	assert.Equal(t, "sector_prices", summary.Tables[1].Table)

	require.NotNil(t, prices.seen)
	assert.Equal(t, []string{"005930"}, keys(prices.seen.Instruments))
	assert.Equal(t, []string{"1001"}, keys(prices.seen.Sectors))

	require.Len(t, f.runs.runs, 1)
	run := f.runs.runs[0]
	assert.Equal(t, "incremental", run.Mode)
	assert.Equal(t, entity.RunStatusPartial, run.Status)
	var persisted dto.RunSummary
	require.NoError(t, json.Unmarshal(run.Summary, &persisted))
	assert.Equal(t, []string{"999999"}, persisted.Tables[0].FailedEntities)

	require.NotEmpty(t, f.notifier.messages)
	assert.Contains(t, f.notifier.messages[0], "daily_prices")
}

func TestIngestionService_ParallelTables(t *testing.T) {
	f := newServiceFixture()
	f.cfg.Ingest.ParallelTables = true
	a := &stubRunner{table: "daily_prices", kind: dto.EntityInstrument, result: dto.TableResult{Status: entity.RunStatusCompleted}}
	b := &stubRunner{table: "investor_trends", kind: dto.EntityInstrument, result: dto.TableResult{Status: entity.RunStatusCompleted}}

	summary, err := f.service(a, b).Backfill(context.Background(), true)

	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusCompleted, summary.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&a.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&b.calls))
	assert.True(t, a.seen.Force)
	assert.Equal(t, dto.ModeBackfill, a.seen.Mode)
	assert.Zero(t, summary.Sectors, "no sector table, no sector universe")
}

func TestIngestionService_InterruptedBeforeLaterTables(t *testing.T) {
	f := newServiceFixture()
	ctx, cancel := context.WithCancel(context.Background())
	first := &cancellingRunner{stubRunner: stubRunner{table: "daily_prices", kind: dto.EntityInstrument,
		result: dto.TableResult{Status: entity.RunStatusCompleted}}, cancel: cancel}
	second := &stubRunner{table: "investor_trends", kind: dto.EntityInstrument}

	summary, err := f.service(first, second).Update(ctx)

	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&second.calls))
	assert.Equal(t, entity.RunStatusSkipped, summary.Tables[1].Status)
	assert.True(t, summary.Tables[1].Interrupted)
	assert.Len(t, f.runs.runs, 1, "summary is persisted even after an interrupt")
}

type cancellingRunner struct {
	stubRunner
	cancel context.CancelFunc
}

func (c *cancellingRunner) Run(ctx context.Context, rc *RunContext) dto.TableResult {
	defer c.cancel()
	return c.stubRunner.Run(ctx, rc)
}

func TestIngestionService_EndToEndWithDailyPrices(t *testing.T) {
	f := newServiceFixture()
	f.krx.rows["005930"] = fiveDays()
	f.cfg.Ingest.Workers = 2
	ingestor := NewTableIngestor(
		newDailyPriceStrategyForTest(f),
		NewWatermarkTracker(f.store),
		f.store,
		newFakeRegistry(),
		newFakeLock(),
		f.cfg.Ingest,
		logger.NewNop(),
	)

	summary, err := f.service(ingestor).Backfill(context.Background(), false)

	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusCompleted, summary.Status)
	assert.Equal(t, int64(5), summary.RecordsWritten())
	assert.Equal(t, 5, f.store.count("005930"))
}
