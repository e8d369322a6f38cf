package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"k-stock-insight/internal/entity"
	"k-stock-insight/internal/ingestor/config"
	"k-stock-insight/internal/ingestor/dto"
	"k-stock-insight/internal/ingestor/repository"
	"k-stock-insight/internal/ingestor/strategy"
	"k-stock-insight/pkg/logger"
	"k-stock-insight/pkg/utils"

	"go.uber.org/zap"
)

type ingestState string

const (
	stateIdle            ingestState = "idle"
	stateResolvingWindow ingestState = "resolving_window"
	stateSkipped         ingestState = "skipped"
	stateIterating       ingestState = "iterating"
	stateCommitting      ingestState = "committing"
	stateReporting       ingestState = "reporting"
)

// TableRunner ingests one table. A runner never aborts the run; every outcome lands in the result.
type TableRunner interface {
	Table() string
	EntityKind() dto.EntityKind
	Run(ctx context.Context, rc *RunContext) dto.TableResult
}

type workItem struct {
	entity dto.Entity
	window dto.Window
	retry  bool
}

// entityResult is what a worker hands to the committing goroutine for one entity.
type entityResult[T any] struct {
	item     workItem
	records  []T
	warnings []*dto.TransformWarning
	attempts int
	err      *dto.FetchError
}

// TableIngestor drives one TableStrategy through the ingestion states. Fetch and
// transform run on a bounded worker pool; a single goroutine owns the BatchWriter.
type TableIngestor[T any] struct {
	strategy               strategy.TableStrategy[T]
	watermark              WatermarkTracker
	marketDataRepository   repository.MarketDataRepository
	failedEntityRepository repository.FailedEntityRepository
	runLockRepository      repository.RunLockRepository
	cfg                    config.Ingest
	log                    *logger.Logger
}

func NewTableIngestor[T any](
	strategy strategy.TableStrategy[T],
	watermark WatermarkTracker,
	marketDataRepository repository.MarketDataRepository,
	failedEntityRepository repository.FailedEntityRepository,
	runLockRepository repository.RunLockRepository,
	cfg config.Ingest,
	log *logger.Logger,
) *TableIngestor[T] {
	return &TableIngestor[T]{
		strategy:               strategy,
		watermark:              watermark,
		marketDataRepository:   marketDataRepository,
		failedEntityRepository: failedEntityRepository,
		runLockRepository:      runLockRepository,
		cfg:                    cfg,
		log:                    log,
	}
}

func (t *TableIngestor[T]) Table() string {
	return t.strategy.Table()
}

func (t *TableIngestor[T]) EntityKind() dto.EntityKind {
	return t.strategy.EntityKind()
}

func (t *TableIngestor[T]) Run(ctx context.Context, rc *RunContext) (result dto.TableResult) {
	started := time.Now()
	table := t.strategy.Table()
	log := t.log.With(logger.StringField("table", table), logger.StringField("mode", string(rc.Mode)))
	result.Table = table

	state := stateIdle
	transition := func(next ingestState) {
		log.DebugContext(ctx, "State transition", logger.StringField("from", string(state)), logger.StringField("to", string(next)))
		state = next
	}
	defer func() {
		result.Elapsed = time.Since(started)
		transition(stateIdle)
	}()

	acquired, err := t.runLockRepository.Acquire(ctx, table, rc.Owner)
	switch {
	case err != nil:
		log.WarnContext(ctx, "Run lock unavailable, continuing without it", logger.ErrorField(err))
	case !acquired:
		transition(stateSkipped)
		result.Status = entity.RunStatusSkipped
		result.SkipReason = "another run holds the table lock"
		log.WarnContext(ctx, "Table skipped", logger.StringField("reason", result.SkipReason))
		return result
	default:
		defer func() {
			releaseCtx, cancel := detached(ctx, 5*time.Second)
			defer cancel()
			if err := t.runLockRepository.Release(releaseCtx, table, rc.Owner); err != nil {
				log.WarnContext(ctx, "Failed to release run lock", logger.ErrorField(err))
			}
		}()
	}

	transition(stateResolvingWindow)
	window, err := t.watermark.ComputeWindow(ctx, WindowRequest{
		Table:        table,
		Mode:         rc.Mode,
		FixedStart:   t.cfg.FixedStartDate(),
		Yesterday:    rc.Yesterday,
		LookbackDays: t.cfg.IncrementalLookbackDays,
		Force:        rc.Force,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to compute fetch window", logger.ErrorField(err))
		result.Status = entity.RunStatusFailed
		result.SkipReason = err.Error()
		return result
	}

	universe := rc.Universe(t.strategy.EntityKind())
	registered := t.loadRegistry(ctx, log)
	items := buildWorkItems(universe, window, t.retryItems(ctx, rc, universe, registered, log))
	if len(items) == 0 {
		transition(stateSkipped)
		result.Status = entity.RunStatusSkipped
		result.SkipReason = "up to date through " + utils.FormatDate(rc.Yesterday)
		if window != nil {
			result.Window = window
			result.SkipReason = "empty universe"
		}
		log.InfoContext(ctx, "Table skipped", logger.StringField("reason", result.SkipReason))
		return result
	}

	result.Window = window
	result.EntitiesTotal = len(items)
	before := t.probe(ctx, log)
	if before != nil {
		result.StoreRowsBefore = before.TotalRows
		result.StoreMaxDateBefore = before.MaxDate
	}

	if window != nil {
		log.InfoContext(ctx, "Ingestion started",
			logger.StringField("window", window.String()),
			logger.IntField("days", window.Days()),
			logger.IntField("entities", len(items)),
			logger.IntField("workers", t.cfg.Workers),
		)
	} else {
		log.InfoContext(ctx, "Ingestion started for previously failed entities only", logger.IntField("entities", len(items)))
	}

	run := &tableRun[T]{
		ingestor:   t,
		result:     &result,
		writer:     NewBatchWriter(table, t.cfg.BatchSize, t.cfg.CommitTimeout, UpsertFunc[T](t.strategy.Upsert), log),
		items:      indexItems(items),
		registered: registered,
		lost:       map[string]*dto.CommitError{},
		started:    started,
		before:     before,
		log:        log,
	}

	transition(stateIterating)
	run.iterate(ctx, items)
	result.Interrupted = ctx.Err() != nil && result.EntitiesProcessed < result.EntitiesTotal

	transition(stateCommitting)
	run.flush(ctx)
	run.collectWriterStats()

	transition(stateReporting)
	run.report(ctx)
	run.updateRegistry(ctx)

	if result.EntitiesFailed > 0 || result.CommitErrors > 0 || result.Interrupted {
		result.Status = entity.RunStatusPartial
	} else {
		result.Status = entity.RunStatusCompleted
	}
	return result
}

// loadRegistry reads the failed-entity registry of the table, keyed by entity.
// A registry that cannot be read is treated as empty.
func (t *TableIngestor[T]) loadRegistry(ctx context.Context, log *logger.Logger) map[string]dto.FailedEntity {
	failed, err := t.failedEntityRepository.List(ctx, t.strategy.Table())
	if err != nil {
		log.WarnContext(ctx, "Failed to load failed entity registry", logger.ErrorField(err))
		return nil
	}
	registered := make(map[string]dto.FailedEntity, len(failed))
	for _, f := range failed {
		registered[f.Key] = f
	}
	return registered
}

// retryable reports whether a registered failure is fetched again in this run.
// Rolled back batches always are; fetch failures only on opted-in incremental runs.
func (t *TableIngestor[T]) retryable(rc *RunContext, f dto.FailedEntity) bool {
	if f.Kind == dto.FailureCommit {
		return true
	}
	return rc.Mode == dto.ModeIncremental && t.cfg.RetryFailedEntities
}

// retryItems builds work items for registered failures. Each window covers the
// failed window and extends to the entity's own watermark through yesterday.
func (t *TableIngestor[T]) retryItems(ctx context.Context, rc *RunContext, universe []dto.Entity, registered map[string]dto.FailedEntity, log *logger.Logger) []workItem {
	if len(registered) == 0 {
		return nil
	}

	known := make(map[string]dto.Entity, len(universe))
	for _, e := range universe {
		known[e.Key] = e
	}

	end := utils.DateOf(rc.Yesterday)
	var items []workItem
	for _, f := range registered {
		if !t.retryable(rc, f) {
			continue
		}

		w := dto.Window{Start: utils.DateOf(f.Window.Start), End: utils.DateOf(f.Window.End)}
		if w.End.After(end) {
			w.End = end
		}
		scoped, err := t.watermark.ComputeWindow(ctx, WindowRequest{
			Table:      t.strategy.Table(),
			EntityKey:  f.Key,
			Mode:       dto.ModeBackfill,
			FixedStart: f.Window.Start,
			Yesterday:  rc.Yesterday,
		})
		if err != nil {
			log.WarnContext(ctx, "Failed to compute retry window", logger.StringField("entity", f.Key), logger.ErrorField(err))
			continue
		}
		if scoped != nil {
			w = w.Merge(*scoped)
		}
		if w.Start.After(w.End) {
			continue
		}

		e, ok := known[f.Key]
		if !ok {
			e = dto.Entity{Key: f.Key, Name: f.Name}
		}
		items = append(items, workItem{entity: e, window: w, retry: true})
	}

	if len(items) > 0 {
		log.InfoContext(ctx, "Retrying previously failed entities", logger.IntField("count", len(items)))
	}
	return items
}

// probe reads aggregate store state. It is informational, so errors only log.
func (t *TableIngestor[T]) probe(ctx context.Context, log *logger.Logger) *dto.TableStats {
	probeCtx, cancel := detached(ctx, t.cfg.CommitTimeout)
	defer cancel()
	stats, err := t.marketDataRepository.TableStats(probeCtx, t.strategy.Table())
	if err != nil {
		log.WarnContext(ctx, "Store probe failed", logger.ErrorField(err))
		return nil
	}
	return stats
}

func (t *TableIngestor[T]) process(ctx context.Context, item workItem, log *logger.Logger) entityResult[T] {
	res := entityResult[T]{item: item}

	var (
		rows []dto.RawRow
		err  error
	)
	for attempt := 0; attempt <= t.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if !utils.ShouldContinue(ctx, nil) {
				break
			}
			log.DebugContext(ctx, "Retrying fetch",
				logger.StringField("entity", item.entity.Key),
				logger.IntField("attempt", attempt+1),
				logger.ErrorField(err),
			)
		}
		res.attempts = attempt + 1
		rows, err = t.fetch(ctx, item)
		if err == nil {
			break
		}
	}
	if err != nil {
		res.err = &dto.FetchError{Table: t.strategy.Table(), Entity: item.entity.Key, Cause: err}
		return res
	}

	res.records, res.warnings = t.strategy.Transform(item.entity, withinWindow(rows, item.window))
	return res
}

// fetch runs on a context detached from cancellation: an interrupt is honoured
// between entities, never in the middle of a provider call.
func (t *TableIngestor[T]) fetch(ctx context.Context, item workItem) ([]dto.RawRow, error) {
	fetchCtx, cancel := detached(ctx, t.cfg.FetchTimeout)
	defer cancel()
	return t.strategy.Fetch(fetchCtx, item.entity, item.window)
}

// tableRun holds the mutable state of one table run. Only the committing goroutine touches it.
type tableRun[T any] struct {
	ingestor *TableIngestor[T]
	result   *dto.TableResult
	writer   *BatchWriter[T]
	items    map[string]workItem
	started  time.Time
	before   *dto.TableStats
	log      *logger.Logger

	registered map[string]dto.FailedEntity
	succeeded  []string
	failures   []dto.FailedEntity
	lost       map[string]*dto.CommitError
	lostOrder  []string
}

func (r *tableRun[T]) iterate(ctx context.Context, items []workItem) {
	workers := r.ingestor.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan workItem)
	results := make(chan entityResult[T], workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		utils.GoSafe(func() {
			defer wg.Done()
			for item := range jobs {
				if !utils.ShouldContinue(ctx, nil) {
					continue
				}
				results <- r.ingestor.process(ctx, item, r.log)
			}
		})
	}

	utils.GoSafe(func() {
		defer close(jobs)
		for _, item := range items {
			if !utils.ShouldContinue(ctx, r.log) {
				return
			}
			select {
			case jobs <- item:
			case <-ctx.Done():
				return
			}
		}
	})

	utils.GoSafe(func() {
		wg.Wait()
		close(results)
	})

	for res := range results {
		r.handle(ctx, res)
	}
}

func (r *tableRun[T]) handle(ctx context.Context, res entityResult[T]) {
	key := res.item.entity.Key
	r.result.EntitiesProcessed++
	if res.item.retry {
		r.result.EntitiesRetried++
	}

	switch {
	case res.err != nil:
		r.result.EntitiesFailed++
		r.result.FailedEntities = append(r.result.FailedEntities, key)
		r.failures = append(r.failures, dto.FailedEntity{
			Key:      key,
			Name:     res.item.entity.Name,
			Kind:     dto.FailureFetch,
			Window:   res.item.window,
			Reason:   res.err.Cause.Error(),
			FailedAt: time.Now(),
		})
		r.log.WarnContext(ctx, "Entity fetch failed, skipping",
			logger.StringField("entity", key),
			logger.IntField("attempts", res.attempts),
			logger.ErrorField(res.err),
		)
	case len(res.records) == 0:
		r.result.EntitiesEmpty++
		r.succeeded = append(r.succeeded, key)
		r.log.DebugContext(ctx, "No data for entity in window",
			logger.StringField("entity", key),
			logger.StringField("window", res.item.window.String()),
		)
	default:
		r.succeeded = append(r.succeeded, key)
		for _, commitErr := range r.writer.Add(ctx, key, res.records) {
			r.commitFailed(commitErr)
		}
		r.log.DebugContext(ctx, "Entity fetched",
			logger.StringField("entity", key),
			logger.IntField("records", len(res.records)),
			logger.IntField("pending", r.writer.Pending()),
		)
	}

	for _, w := range res.warnings {
		r.result.TransformWarnings++
		r.log.WarnContext(ctx, "Field defaulted to zero", logger.ErrorField(w))
	}

	if r.result.EntitiesProcessed%r.ingestor.cfg.CheckpointEvery == 0 {
		r.checkpoint(ctx)
	}
}

// checkpoint forces a commit and reports progress against live store state.
func (r *tableRun[T]) checkpoint(ctx context.Context) {
	r.flush(ctx)
	r.collectWriterStats()

	processed, total := r.result.EntitiesProcessed, r.result.EntitiesTotal
	elapsed := time.Since(r.started)
	eta := time.Duration(0)
	if processed > 0 {
		eta = time.Duration(float64(elapsed) / float64(processed) * float64(total-processed))
	}

	logFields := progressFields(processed, total, elapsed, eta, r.result)
	if stats := r.ingestor.probe(ctx, r.log); stats != nil {
		logFields = append(logFields,
			logger.Int64Field("store_rows", stats.TotalRows),
			logger.Int64Field("store_entities", stats.DistinctEntities),
			logger.Field("store_min_date", stats.MinDate),
			logger.Field("store_max_date", stats.MaxDate),
		)
		if r.before != nil {
			logFields = append(logFields, logger.Int64Field("rows_since_start", stats.TotalRows-r.before.TotalRows))
		}
	}
	r.log.InfoContext(ctx, "Ingestion progress", logFields...)
}

func (r *tableRun[T]) flush(ctx context.Context) {
	if commitErr := r.writer.Flush(ctx); commitErr != nil {
		r.commitFailed(commitErr)
	}
}

// commitFailed remembers which entities lost records in a rolled back batch.
func (r *tableRun[T]) commitFailed(commitErr *dto.CommitError) {
	for _, key := range commitErr.Entities {
		if _, seen := r.lost[key]; !seen {
			r.lostOrder = append(r.lostOrder, key)
		}
		r.lost[key] = commitErr
	}
}

func (r *tableRun[T]) collectWriterStats() {
	r.result.Commits = r.writer.commits
	r.result.CommitErrors = r.writer.commitErrors
	r.result.RecordsWritten = r.writer.recordsWritten
	r.result.RecordsLost = r.writer.recordsLost
	r.result.LostEntities = append([]string(nil), r.lostOrder...)
}

// report compares the store delta with what this run committed. A mismatch is logged, never fatal.
func (r *tableRun[T]) report(ctx context.Context) {
	after := r.ingestor.probe(ctx, r.log)
	if after == nil {
		return
	}
	r.result.StoreRowsAfter = after.TotalRows
	r.result.StoreMaxDateAfter = after.MaxDate

	logFields := []zap.Field{
		logger.Int64Field("committed", r.result.RecordsWritten),
		logger.Int64Field("lost", r.result.RecordsLost),
		logger.Int64Field("store_rows", after.TotalRows),
		logger.Int64Field("store_entities", after.DistinctEntities),
		logger.Field("store_min_date", after.MinDate),
		logger.Field("store_max_date", after.MaxDate),
		logger.IntField("failed", r.result.EntitiesFailed),
	}
	if r.before == nil {
		r.log.InfoContext(ctx, "Consistency probe", logFields...)
		return
	}

	delta := after.TotalRows - r.before.TotalRows
	logFields = append(logFields, logger.Int64Field("rows_added", delta))
	if delta > r.result.RecordsWritten {
		r.log.WarnContext(ctx, "Store grew more than this run committed, another writer may be active", logFields...)
		return
	}
	logFields = append(logFields, logger.Int64Field("overwritten", r.result.RecordsWritten-delta))
	r.log.InfoContext(ctx, "Consistency probe", logFields...)
}

// updateRegistry records entities that failed outright or lost a batch. A registered
// entity is cleared only once a successful item covered its recorded window.
func (r *tableRun[T]) updateRegistry(ctx context.Context) {
	table := r.ingestor.strategy.Table()
	registryCtx, cancel := detached(ctx, r.ingestor.cfg.CommitTimeout)
	defer cancel()

	failures := r.failures
	for _, key := range r.lostOrder {
		item := r.items[key]
		failures = append(failures, dto.FailedEntity{
			Key:      key,
			Name:     item.entity.Name,
			Kind:     dto.FailureCommit,
			Window:   item.window,
			Reason:   "batch commit rolled back: " + r.lost[key].Cause.Error(),
			FailedAt: time.Now(),
		})
	}

	var recovered []string
	for _, key := range r.succeeded {
		if _, ok := r.lost[key]; ok {
			continue
		}
		f, ok := r.registered[key]
		if !ok || !r.items[key].window.Covers(f.Window) {
			continue
		}
		recovered = append(recovered, key)
	}

	if err := r.ingestor.failedEntityRepository.Record(registryCtx, table, failures); err != nil {
		r.log.WarnContext(ctx, "Failed to record failed entities", logger.IntField("count", len(failures)), logger.ErrorField(err))
	}
	if err := r.ingestor.failedEntityRepository.Clear(registryCtx, table, recovered); err != nil {
		r.log.WarnContext(ctx, "Failed to clear recovered entities", logger.ErrorField(err))
	}
}

func progressFields(processed, total int, elapsed, eta time.Duration, result *dto.TableResult) []zap.Field {
	percent := 0.0
	if total > 0 {
		percent = float64(processed) * 100 / float64(total)
	}
	return []zap.Field{
		logger.IntField("processed", processed),
		logger.IntField("total", total),
		logger.Field("percent", fmt.Sprintf("%.1f", percent)),
		logger.DurationField("elapsed", elapsed.Round(time.Second)),
		logger.DurationField("eta", eta.Round(time.Second)),
		logger.Int64Field("records", result.RecordsWritten),
		logger.IntField("failed", result.EntitiesFailed),
	}
}

func buildWorkItems(universe []dto.Entity, window *dto.Window, retries []workItem) []workItem {
	items := make([]workItem, 0, len(universe)+len(retries))
	index := make(map[string]int, len(universe)+len(retries))
	if window != nil {
		for _, e := range universe {
			index[e.Key] = len(items)
			items = append(items, workItem{entity: e, window: *window})
		}
	}
	for _, r := range retries {
		if i, ok := index[r.entity.Key]; ok {
			items[i].window = items[i].window.Merge(r.window)
			items[i].retry = true
			continue
		}
		index[r.entity.Key] = len(items)
		items = append(items, r)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].entity.Key < items[j].entity.Key })
	return items
}

func indexItems(items []workItem) map[string]workItem {
	out := make(map[string]workItem, len(items))
	for _, item := range items {
		out[item.entity.Key] = item
	}
	return out
}

func withinWindow(rows []dto.RawRow, window dto.Window) []dto.RawRow {
	out := rows[:0:0]
	for _, row := range rows {
		d := utils.DateOf(row.Date)
		if d.Before(window.Start) || d.After(window.End) {
			continue
		}
		out = append(out, row)
	}
	return out
}

// detached returns a context that survives cancellation of ctx, bounded by timeout when positive.
func detached(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if timeout <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, timeout)
}
