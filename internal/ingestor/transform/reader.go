package transform

import (
	"k-stock-insight/internal/ingestor/dto"
	"k-stock-insight/pkg/utils"
)

// rowReader reads typed fields from one raw row. Unparseable required fields
// become 0 and leave a warning behind.
type rowReader struct {
	entity   string
	row      dto.RawRow
	warnings []*dto.TransformWarning
}

func newRowReader(entity string, row dto.RawRow) *rowReader {
	return &rowReader{entity: entity, row: row}
}

func (r *rowReader) Int(field string) int64 {
	raw := r.row.Fields[field]
	v, err := ParseInt(raw)
	if err != nil {
		r.warn(field, raw, err)
	}
	return v
}

func (r *rowReader) Float(field string) float64 {
	raw := r.row.Fields[field]
	v, err := ParseFloat(raw)
	if err != nil {
		r.warn(field, raw, err)
	}
	return v
}

// OptionalInt returns 0 without a warning when the column is unmapped or absent.
func (r *rowReader) OptionalInt(field string) int64 {
	if field == "" {
		return 0
	}
	if _, ok := r.row.Fields[field]; !ok {
		return 0
	}
	return r.Int(field)
}

func (r *rowReader) warn(field, raw string, err error) {
	r.warnings = append(r.warnings, &dto.TransformWarning{
		Entity: r.entity,
		Date:   utils.FormatDate(r.row.Date),
		Field:  field,
		Raw:    raw,
		Cause:  err,
	})
}

// dedupeByDate keeps the last row for each date, preserving first-seen order.
// One upsert statement must not touch the same key twice.
func dedupeByDate(rows []dto.RawRow) []dto.RawRow {
	index := make(map[string]int, len(rows))
	out := make([]dto.RawRow, 0, len(rows))
	for _, row := range rows {
		key := utils.FormatDate(row.Date)
		if i, ok := index[key]; ok {
			out[i] = row
			continue
		}
		index[key] = len(out)
		out = append(out, row)
	}
	return out
}
