package entity

import (
	"time"

	"gorm.io/datatypes"
)

type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusSkipped   RunStatus = "skipped"
	RunStatusFailed    RunStatus = "failed"
)

// IngestionRun records the outcome of one backfill or incremental run.
type IngestionRun struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Mode       string         `gorm:"not null" json:"mode"`
	Status     RunStatus      `gorm:"not null" json:"status"`
	StartedAt  time.Time      `gorm:"not null" json:"started_at"`
	FinishedAt time.Time      `gorm:"not null" json:"finished_at"`
	Summary    datatypes.JSON `gorm:"type:jsonb" json:"summary"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (IngestionRun) TableName() string {
	return "ingestion_runs"
}
