package service

import (
	"fmt"
	"os"
	"time"

	"k-stock-insight/internal/ingestor/dto"
)

// RunContext is the state shared by every table of one run. Tables read it but never mutate it,
// so concurrent table runs need no further synchronization.
type RunContext struct {
	Mode        dto.Mode
	Force       bool
	Yesterday   time.Time
	StartedAt   time.Time
	Owner       string
	Instruments []dto.Entity
	Sectors     []dto.Entity
}

// Universe returns the entity set a table of the given kind iterates over.
func (rc *RunContext) Universe(kind dto.EntityKind) []dto.Entity {
	if kind == dto.EntitySector {
		return rc.Sectors
	}
	return rc.Instruments
}

func newRunOwner(startedAt time.Time) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), startedAt.UnixNano())
}
