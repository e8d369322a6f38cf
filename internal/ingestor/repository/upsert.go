package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertChunkSize keeps each INSERT well under the postgres bind parameter limit.
const upsertChunkSize = 1000

// upsert writes records in one transaction. Existing rows matching the conflict
// columns get the update columns overwritten, so reruns converge to the same state.
func upsert[T any](ctx context.Context, db *gorm.DB, records []T, conflict, updates []string) error {
	if len(records) == 0 {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(records); start += upsertChunkSize {
			end := start + upsertChunkSize
			if end > len(records) {
				end = len(records)
			}
			chunk := records[start:end]
			if err := upsertStatement(tx, &chunk, conflict, updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertStatement(tx *gorm.DB, records interface{}, conflict, updates []string) *gorm.DB {
	columns := make([]clause.Column, 0, len(conflict))
	for _, name := range conflict {
		columns = append(columns, clause.Column{Name: name})
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   columns,
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(records)
}
