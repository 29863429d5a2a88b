package core

// errors.go defines the import error taxonomy.
//
//   - ConfigurationError: the platform cannot be resolved or its config is
//     unusable. Fatal and never retried.
//   - ParsingError: one row has a date or number that does not parse.
//     Row-scoped; what happens next is decided by the RowErrorPolicy.
//   - PersistenceError: a batch write failed and was rolled back. The run
//     ends and the job runner may retry it from the start.
//
// Natural-key conflicts are not errors; they surface as skip counts.

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"

	"github.com/JonMunkholm/salesimport/internal/storage"
)

// ErrEmptyFile is returned when a source has no header row.
var ErrEmptyFile = errors.New("empty file: no header row")

// ErrQueueUnavailable wraps failures to hand a job to the job queue.
var ErrQueueUnavailable = errors.New("job queue unavailable")

// ConfigurationError reports a platform that cannot be imported.
type ConfigurationError struct {
	Platform string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("platform %q: %v", e.Platform, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ParsingError reports a cell that does not parse under the platform config.
type ParsingError struct {
	LineNumber int
	Field      string
	Column     string
	Value      string
	Err        error
}

func (e *ParsingError) Error() string {
	msg := fmt.Sprintf("%s (column %q, value %q): %v", e.Field, e.Column, e.Value, e.Err)
	if e.LineNumber > 0 {
		return fmt.Sprintf("line %d: %s", e.LineNumber, msg)
	}
	return msg
}

func (e *ParsingError) Unwrap() error { return e.Err }

// PersistenceError reports a failed batch write. The batch was rolled back.
type PersistenceError struct {
	Batch int
	Stage string
	Err   error
}

func (e *PersistenceError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("batch %d: %v", e.Batch, e.Err)
	}
	return fmt.Sprintf("batch %d: %s: %v", e.Batch, e.Stage, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsRetryable reports whether re-running the whole import could succeed.
// Configuration and parsing problems, unreadable files, missing sources and
// cancellation are final; persistence and source I/O failures are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var cfgErr *ConfigurationError
	var parseErr *ParsingError
	var csvErr *csv.ParseError
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &parseErr), errors.As(err, &csvErr):
		return false
	case errors.Is(err, ErrEmptyFile), errors.Is(err, storage.ErrNotFound):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	return true
}
