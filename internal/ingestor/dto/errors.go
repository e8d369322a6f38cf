package dto

import (
	"fmt"
	"strings"
)

// ConnectionError means the store cannot be reached. It aborts the whole run.
type ConnectionError struct {
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("store connection failed: %v", e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// FetchError is a per-entity upstream failure. The entity is skipped and counted.
type FetchError struct {
	Table  string
	Entity string
	Cause  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for %s: %v", e.Table, e.Entity, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// TransformWarning reports a field that was defaulted during normalization.
type TransformWarning struct {
	Entity string
	Date   string
	Field  string
	Raw    string
	Cause  error
}

func (e *TransformWarning) Error() string {
	return fmt.Sprintf("transform %s %s field %s: raw %q defaulted to 0: %v", e.Entity, e.Date, e.Field, e.Raw, e.Cause)
}

func (e *TransformWarning) Unwrap() error { return e.Cause }

// CommitError is a rolled back batch. Earlier batches are unaffected.
type CommitError struct {
	Table    string
	Records  int
	Entities []string
	Cause    error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %d %s records (%s): %v", e.Records, e.Table, strings.Join(e.Entities, ","), e.Cause)
}

func (e *CommitError) Unwrap() error { return e.Cause }
