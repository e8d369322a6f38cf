package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"k-stock-insight/internal/entity"
	"k-stock-insight/internal/ingestor/config"
	"k-stock-insight/internal/ingestor/dto"
	"k-stock-insight/internal/ingestor/repository"
	"k-stock-insight/pkg/logger"
	"k-stock-insight/pkg/telegram"
	"k-stock-insight/pkg/utils"
)

// IngestionService exposes the two run modes.
type IngestionService interface {
	// Backfill ingests from the fixed start date. With force it ignores stored watermarks.
	Backfill(ctx context.Context, force bool) (*dto.RunSummary, error)
	// Update ingests the gap between each table's watermark and yesterday.
	Update(ctx context.Context) (*dto.RunSummary, error)
}

type ingestionService struct {
	cfg                    *config.Config
	log                    *logger.Logger
	marketDataRepository   repository.MarketDataRepository
	ingestionRunRepository repository.IngestionRunRepository
	universe               UniverseResolver
	runners                []TableRunner
	notifier               telegram.Notifier
	now                    func() time.Time
}

func NewIngestionService(
	cfg *config.Config,
	log *logger.Logger,
	marketDataRepository repository.MarketDataRepository,
	ingestionRunRepository repository.IngestionRunRepository,
	universe UniverseResolver,
	runners []TableRunner,
	notifier telegram.Notifier,
) IngestionService {
	return &ingestionService{
		cfg:                    cfg,
		log:                    log,
		marketDataRepository:   marketDataRepository,
		ingestionRunRepository: ingestionRunRepository,
		universe:               universe,
		runners:                runners,
		notifier:               notifier,
		now:                    time.Now,
	}
}

func (s *ingestionService) Backfill(ctx context.Context, force bool) (*dto.RunSummary, error) {
	return s.run(ctx, dto.ModeBackfill, force)
}

func (s *ingestionService) Update(ctx context.Context) (*dto.RunSummary, error) {
	return s.run(ctx, dto.ModeIncremental, false)
}

func (s *ingestionService) run(ctx context.Context, mode dto.Mode, force bool) (*dto.RunSummary, error) {
	startedAt := s.now()
	log := s.log.With(logger.StringField("mode", string(mode)))

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := s.marketDataRepository.Ping(pingCtx)
	cancel()
	if err != nil {
		connErr := &dto.ConnectionError{Cause: err}
		log.ErrorContext(ctx, "Store unreachable, aborting run", logger.ErrorField(connErr))
		return nil, connErr
	}

	rc := &RunContext{
		Mode:      mode,
		Force:     force,
		Yesterday: utils.Yesterday(startedAt, s.cfg.Ingest.Location()),
		StartedAt: startedAt,
		Owner:     newRunOwner(startedAt),
	}
	if s.needs(dto.EntityInstrument) {
		rc.Instruments = s.universe.ListInstruments(ctx, mode, s.cfg.Ingest.Markets)
	}
	if s.needs(dto.EntitySector) {
		rc.Sectors = s.universe.ListSectors(ctx, mode, s.cfg.Ingest.SectorMarket)
	}

	log.InfoContext(ctx, "Ingestion run started",
		logger.StringField("yesterday", utils.FormatDate(rc.Yesterday)),
		logger.IntField("instruments", len(rc.Instruments)),
		logger.IntField("sectors", len(rc.Sectors)),
		logger.Field("force", force),
	)

	summary := &dto.RunSummary{
		Mode:        mode,
		Yesterday:   rc.Yesterday,
		StartedAt:   startedAt,
		Instruments: len(rc.Instruments),
		Sectors:     len(rc.Sectors),
		Tables:      s.runTables(ctx, rc, log),
	}
	summary.FinishedAt = s.now()
	summary.Elapsed = summary.FinishedAt.Sub(startedAt)
	summary.Status = summary.OverallStatus()

	s.logSummary(ctx, log, summary)
	s.persist(ctx, log, summary)
	s.notify(ctx, log, summary)
	return summary, nil
}

func (s *ingestionService) needs(kind dto.EntityKind) bool {
	for _, r := range s.runners {
		if r.EntityKind() == kind {
			return true
		}
	}
	return false
}

// runTables runs every table, sequentially or in parallel. Tables contend only for
// their own keyed rows, so parallel runs need no coordination.
func (s *ingestionService) runTables(ctx context.Context, rc *RunContext, log *logger.Logger) []dto.TableResult {
	results := make([]dto.TableResult, len(s.runners))

	if s.cfg.Ingest.ParallelTables {
		var wg sync.WaitGroup
		for i, runner := range s.runners {
			results[i] = dto.TableResult{Table: runner.Table(), Status: entity.RunStatusFailed, SkipReason: "table run panicked"}
			wg.Add(1)
			utils.GoSafe(func() {
				defer wg.Done()
				results[i] = runner.Run(ctx, rc)
			})
		}
		wg.Wait()
		return results
	}

	for i, runner := range s.runners {
		if !utils.ShouldContinue(ctx, log) {
			results[i] = dto.TableResult{
				Table:       runner.Table(),
				Status:      entity.RunStatusSkipped,
				SkipReason:  "run interrupted",
				Interrupted: true,
			}
			continue
		}
		results[i] = runner.Run(ctx, rc)
	}
	return results
}

func (s *ingestionService) logSummary(ctx context.Context, log *logger.Logger, summary *dto.RunSummary) {
	for _, t := range summary.Tables {
		window := ""
		if t.Window != nil {
			window = t.Window.String()
		}
		log.InfoContext(ctx, "Table summary",
			logger.StringField("table", t.Table),
			logger.StringField("status", string(t.Status)),
			logger.StringField("reason", t.SkipReason),
			logger.StringField("window", window),
			logger.IntField("entities_total", t.EntitiesTotal),
			logger.IntField("entities_processed", t.EntitiesProcessed),
			logger.IntField("entities_empty", t.EntitiesEmpty),
			logger.IntField("entities_failed", t.EntitiesFailed),
			logger.Int64Field("records_written", t.RecordsWritten),
			logger.Int64Field("records_lost", t.RecordsLost),
			logger.IntField("transform_warnings", t.TransformWarnings),
			logger.IntField("commit_errors", t.CommitErrors),
			logger.Field("failed_entities", t.FailedEntities),
			logger.DurationField("elapsed", t.Elapsed),
		)
	}
	log.InfoContext(ctx, "Ingestion run finished",
		logger.StringField("status", string(summary.Status)),
		logger.Int64Field("records_written", summary.RecordsWritten()),
		logger.IntField("entities_failed", summary.EntitiesFailed()),
		logger.DurationField("elapsed", summary.Elapsed),
	)
}

func (s *ingestionService) persist(ctx context.Context, log *logger.Logger, summary *dto.RunSummary) {
	payload, err := json.Marshal(summary)
	if err != nil {
		log.ErrorContext(ctx, "Failed to marshal run summary", logger.ErrorField(err))
		return
	}

	persistCtx, cancel := detached(ctx, 10*time.Second)
	defer cancel()
	run := &entity.IngestionRun{
		Mode:       string(summary.Mode),
		Status:     summary.Status,
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Summary:    payload,
	}
	if err := s.ingestionRunRepository.Create(persistCtx, run); err != nil {
		log.ErrorContext(ctx, "Failed to persist run summary", logger.ErrorField(err))
	}
}

func (s *ingestionService) notify(ctx context.Context, log *logger.Logger, summary *dto.RunSummary) {
	if s.notifier == nil {
		return
	}
	for _, msg := range telegram.FormatRunSummaryForTelegram(summary) {
		if err := s.notifier.SendMessage(msg); err != nil {
			log.WarnContext(ctx, "Failed to send run summary to Telegram", logger.ErrorField(err))
			return
		}
	}
}
