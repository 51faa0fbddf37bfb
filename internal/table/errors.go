package table

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy matches any *BusyError.
	ErrBusy = errors.New("table writer busy")

	// ErrStaleReader matches any *StaleReaderError.
	ErrStaleReader = errors.New("table reader out of date")

	// ErrNotHeld is returned when enqueueing for a table nobody holds.
	// The caller should retry acquisition instead.
	ErrNotHeld = errors.New("table writer not held")

	// ErrContextNotBound fails a queued command whose operation was never
	// bound to an execution context.
	ErrContextNotBound = errors.New("operation has no bound execution context")

	// ErrWriterClosed is returned by a Writer after Close.
	ErrWriterClosed = errors.New("table writer closed")

	// ErrPoolClosed is returned once the pool has been shut down.
	ErrPoolClosed = errors.New("writer pool closed")

	// ErrNotCompleted is returned by Command.Result before completion.
	ErrNotCompleted = errors.New("command not completed")

	// ErrWrongTable is returned when a writer is asked to apply an
	// operation for a different table.
	ErrWrongTable = errors.New("operation targets a different table")
)

// BusyError reports that a table's writer is held by another owner.
type BusyError struct {
	Table string
	// Owner is the reason string the current holder acquired with.
	Owner string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("table %q writer busy (held by %q)", e.Table, e.Owner)
}

// Is makes errors.Is(err, ErrBusy) match.
func (e *BusyError) Is(target error) bool {
	return target == ErrBusy
}

// StaleReaderError reports a reader whose table version is behind the
// writer. It belongs to the read path; updates always go through a fresh
// writer and must never see it.
type StaleReaderError struct {
	Table   string
	Version int64
}

func (e *StaleReaderError) Error() string {
	return fmt.Sprintf("table %q reader out of date (version %d)", e.Table, e.Version)
}

// Is makes errors.Is(err, ErrStaleReader) match.
func (e *StaleReaderError) Is(target error) bool {
	return target == ErrStaleReader
}
