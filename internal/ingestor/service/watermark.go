package service

import (
	"context"
	"time"

	"k-stock-insight/internal/ingestor/dto"
	"k-stock-insight/internal/ingestor/repository"
	"k-stock-insight/pkg/utils"
)

// WindowRequest describes which gap the watermark tracker should compute.
type WindowRequest struct {
	Table string
	// EntityKey scopes the watermark to one ticker or sector code. Empty means table-wide.
	EntityKey    string
	Mode         dto.Mode
	FixedStart   time.Time
	Yesterday    time.Time
	LookbackDays int
	// Force ignores the stored watermark and restarts from FixedStart.
	Force bool
}

// WatermarkTracker computes the date range still missing from a table.
type WatermarkTracker interface {
	// ComputeWindow returns nil when the table is already complete through yesterday.
	ComputeWindow(ctx context.Context, req WindowRequest) (*dto.Window, error)
}

type watermarkTracker struct {
	marketDataRepository repository.MarketDataRepository
}

func NewWatermarkTracker(marketDataRepository repository.MarketDataRepository) WatermarkTracker {
	return &watermarkTracker{marketDataRepository: marketDataRepository}
}

func (w *watermarkTracker) ComputeWindow(ctx context.Context, req WindowRequest) (*dto.Window, error) {
	end := utils.DateOf(req.Yesterday)

	var maxDate *time.Time
	if !req.Force {
		var err error
		maxDate, err = w.marketDataRepository.MaxDate(ctx, req.Table, req.EntityKey)
		if err != nil {
			return nil, err
		}
	}

	var start time.Time
	switch {
	case maxDate != nil:
		start = utils.DateOf(*maxDate).AddDate(0, 0, 1)
	case req.Mode == dto.ModeBackfill:
		start = utils.DateOf(req.FixedStart)
	default:
		start = end.AddDate(0, 0, -req.LookbackDays)
	}

	if start.After(end) {
		return nil, nil
	}
	return &dto.Window{Start: start, End: end}, nil
}
