package dto

import (
	"time"

	"k-stock-insight/internal/entity"
)

// TableResult is the outcome of one table ingestion run.
type TableResult struct {
	Table              string           `json:"table"`
	Status             entity.RunStatus `json:"status"`
	SkipReason         string           `json:"skip_reason,omitempty"`
	Window             *Window          `json:"window,omitempty"`
	EntitiesTotal      int              `json:"entities_total"`
	EntitiesProcessed  int              `json:"entities_processed"`
	EntitiesEmpty      int              `json:"entities_empty"`
	EntitiesFailed     int              `json:"entities_failed"`
	EntitiesRetried    int              `json:"entities_retried"`
	RecordsWritten     int64            `json:"records_written"`
	RecordsLost        int64            `json:"records_lost"`
	Commits            int              `json:"commits"`
	CommitErrors       int              `json:"commit_errors"`
	TransformWarnings  int              `json:"transform_warnings"`
	FailedEntities     []string         `json:"failed_entities,omitempty"`
	LostEntities       []string         `json:"lost_entities,omitempty"`
	Interrupted        bool             `json:"interrupted"`
	Elapsed            time.Duration    `json:"elapsed"`
	StoreRowsBefore    int64            `json:"store_rows_before"`
	StoreRowsAfter     int64            `json:"store_rows_after"`
	StoreMaxDateBefore *time.Time       `json:"store_max_date_before,omitempty"`
	StoreMaxDateAfter  *time.Time       `json:"store_max_date_after,omitempty"`
}

// RunSummary aggregates every table of one run.
type RunSummary struct {
	Mode        Mode             `json:"mode"`
	Status      entity.RunStatus `json:"status"`
	Yesterday   time.Time        `json:"yesterday"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Elapsed     time.Duration    `json:"elapsed"`
	Instruments int              `json:"instruments"`
	Sectors     int              `json:"sectors"`
	Tables      []TableResult    `json:"tables"`
}

// RecordsWritten sums committed records across tables.
func (s *RunSummary) RecordsWritten() int64 {
	var n int64
	for _, t := range s.Tables {
		n += t.RecordsWritten
	}
	return n
}

// EntitiesFailed sums per-entity failures across tables.
func (s *RunSummary) EntitiesFailed() int {
	var n int
	for _, t := range s.Tables {
		n += t.EntitiesFailed
	}
	return n
}

// OverallStatus folds the table statuses into one run status.
func (s *RunSummary) OverallStatus() entity.RunStatus {
	if len(s.Tables) == 0 {
		return entity.RunStatusSkipped
	}
	skipped := 0
	for _, t := range s.Tables {
		switch t.Status {
		case entity.RunStatusFailed, entity.RunStatusPartial:
			return entity.RunStatusPartial
		case entity.RunStatusSkipped:
			skipped++
		}
	}
	if skipped == len(s.Tables) {
		return entity.RunStatusSkipped
	}
	return entity.RunStatusCompleted
}
