package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrTimedOut is returned by Await when the wait ends before the
	// deferred update ran. The update stays queued.
	ErrTimedOut = errors.New("deferred update not completed before timeout")

	// ErrNotDone is returned by Value on a future that has not completed.
	ErrNotDone = errors.New("deferred update not completed")
)

// SQLError is a validation failure for the statement behind an operation.
// Position is the offset of the offending token in the statement text.
type SQLError struct {
	Position int
	Message  string
}

func (e *SQLError) Error() string {
	return fmt.Sprintf("sql error at position %d: %s", e.Position, e.Message)
}

// IsSQLError reports whether err is or wraps a *SQLError.
func IsSQLError(err error) bool {
	var se *SQLError
	return errors.As(err, &se)
}

// DefectPolicy decides what Execute does when the writer reports a stale
// reader, which an update must never see.
type DefectPolicy string

const (
	// DefectFallback logs the defect and reports the update as done.
	DefectFallback DefectPolicy = "fallback"

	// DefectAbort logs the defect and panics.
	DefectAbort DefectPolicy = "abort"
)

// ParseDefectPolicy maps a config value to a policy. Empty means fallback.
func ParseDefectPolicy(s string) (DefectPolicy, error) {
	switch DefectPolicy(s) {
	case "", DefectFallback:
		return DefectFallback, nil
	case DefectAbort:
		return DefectAbort, nil
	default:
		return "", fmt.Errorf("unknown defect policy %q (want fallback or abort)", s)
	}
}
