package strategy

import (
	"context"

	"k-stock-insight/internal/ingestor/dto"
)

// TableStrategy defines how one target table is fetched, normalized and written.
// The ingestion controller is table-agnostic and drives any strategy the same way.
type TableStrategy[T any] interface {
	Table() string
	EntityKind() dto.EntityKind
	// Fetch returns the raw series for one entity. An empty series is not an error.
	Fetch(ctx context.Context, entity dto.Entity, window dto.Window) ([]dto.RawRow, error)
	// Transform is permissive: bad numeric fields become 0 and a warning.
	Transform(entity dto.Entity, rows []dto.RawRow) ([]T, []*dto.TransformWarning)
	// Upsert writes records idempotently in one transaction.
	Upsert(ctx context.Context, records []T) error
}
