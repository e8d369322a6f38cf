package service

import (
	"context"
	"time"

	"k-stock-insight/internal/ingestor/dto"
	"k-stock-insight/pkg/logger"
)

// UpsertFunc writes one batch atomically.
type UpsertFunc[T any] func(ctx context.Context, records []T) error

// BatchWriter accumulates records and commits them in batches of a fixed size.
// It is owned by a single goroutine and is not safe for concurrent use.
type BatchWriter[T any] struct {
	table         string
	batchSize     int
	commitTimeout time.Duration
	upsert        UpsertFunc[T]
	log           *logger.Logger

	pending []T
	owners  []string

	commits        int
	commitErrors   int
	recordsWritten int64
	recordsLost    int64
}

func NewBatchWriter[T any](table string, batchSize int, commitTimeout time.Duration, upsert UpsertFunc[T], log *logger.Logger) *BatchWriter[T] {
	return &BatchWriter[T]{
		table:         table,
		batchSize:     batchSize,
		commitTimeout: commitTimeout,
		upsert:        upsert,
		log:           log,
		pending:       make([]T, 0, batchSize),
		owners:        make([]string, 0, batchSize),
	}
}

// Add queues one entity's records and commits every full batch. Each rolled back
// batch is returned; its records are dropped from the writer.
func (w *BatchWriter[T]) Add(ctx context.Context, entityKey string, records []T) []*dto.CommitError {
	for _, r := range records {
		w.pending = append(w.pending, r)
		w.owners = append(w.owners, entityKey)
	}

	var errs []*dto.CommitError
	for len(w.pending) >= w.batchSize {
		if err := w.commit(ctx, w.batchSize); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Flush commits whatever is pending, even a partial batch.
func (w *BatchWriter[T]) Flush(ctx context.Context) *dto.CommitError {
	if len(w.pending) == 0 {
		return nil
	}
	return w.commit(ctx, len(w.pending))
}

func (w *BatchWriter[T]) Pending() int {
	return len(w.pending)
}

// commit writes the first n pending records. It runs on a context detached from
// cancellation so an interrupt never drops a batch that is already being written.
func (w *BatchWriter[T]) commit(ctx context.Context, n int) *dto.CommitError {
	batch := make([]T, n)
	copy(batch, w.pending[:n])
	owners := distinct(w.owners[:n])

	commitCtx, cancel := detached(ctx, w.commitTimeout)
	defer cancel()

	start := time.Now()
	err := w.upsert(commitCtx, batch)

	w.pending = append(w.pending[:0], w.pending[n:]...)
	w.owners = append(w.owners[:0], w.owners[n:]...)

	if err != nil {
		w.commitErrors++
		w.recordsLost += int64(n)
		commitErr := &dto.CommitError{Table: w.table, Records: n, Entities: owners, Cause: err}
		w.log.ErrorContext(ctx, "Batch commit rolled back",
			logger.StringField("table", w.table),
			logger.IntField("records", n),
			logger.Field("entities", owners),
			logger.ErrorField(err),
		)
		return commitErr
	}

	w.commits++
	w.recordsWritten += int64(n)
	w.log.DebugContext(ctx, "Batch committed",
		logger.StringField("table", w.table),
		logger.IntField("records", n),
		logger.DurationField("took", time.Since(start)),
	)
	return nil
}

func distinct(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
