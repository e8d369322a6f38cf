package dto

import (
	"fmt"
	"time"
)

// Mode selects how an ingestion run resolves its windows and universe.
type Mode string

const (
	ModeBackfill    Mode = "backfill"
	ModeIncremental Mode = "incremental"
)

// EntityKind tells which universe a table iterates over.
type EntityKind string

const (
	EntityInstrument EntityKind = "instrument"
	EntitySector     EntityKind = "sector"
)

// Entity is one member of a run's universe: a ticker or a sector code.
type Entity struct {
	Key    string
	Name   string
	Market string
}

// Listing is one row of an upstream instrument or index listing.
type Listing struct {
	Code       string
	FullCode   string
	Name       string
	Market     string
	ListedDate *time.Time
}

// RawRow is one dated row of an upstream series, still in provider field names.
type RawRow struct {
	Date   time.Time
	Fields map[string]string
}

// Window is an inclusive date range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
}

// Days returns the number of calendar days covered by the window.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// Covers reports whether w spans every day of o.
func (w Window) Covers(o Window) bool {
	return !w.Start.After(o.Start) && !w.End.Before(o.End)
}

// Merge returns the smallest window covering both w and o.
func (w Window) Merge(o Window) Window {
	out := w
	if o.Start.Before(out.Start) {
		out.Start = o.Start
	}
	if o.End.After(out.End) {
		out.End = o.End
	}
	return out
}

// TableStats is a consistency probe of a stored table.
type TableStats struct {
	TotalRows        int64      `json:"total_rows"`
	DistinctEntities int64      `json:"distinct_entities"`
	MinDate          *time.Time `json:"min_date,omitempty"`
	MaxDate          *time.Time `json:"max_date,omitempty"`
}

// FailureKind tells how an entity's data went missing.
type FailureKind string

const (
	// FailureFetch is an upstream failure after every retry.
	FailureFetch FailureKind = "fetch"
	// FailureCommit is a fetched entity whose batch was rolled back.
	FailureCommit FailureKind = "commit"
)

// FailedEntity is an entity whose ingestion failed outright in a previous run.
// Entries written before kinds existed decode with an empty Kind and count as fetch failures.
type FailedEntity struct {
	Key      string      `json:"key"`
	Name     string      `json:"name,omitempty"`
	Kind     FailureKind `json:"kind,omitempty"`
	Window   Window    `json:"window"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}
