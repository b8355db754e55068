package rrd

import "github.com/pkg/errors"

// Sentinel errors forming the taxonomy from spec.md §7. Wrap with
// errors.Wrapf (github.com/pkg/errors) for context; recover the
// sentinel with errors.Cause and compare it against these values. The
// pkg/errors version in go.mod (v0.8.1) gives its wrappers no Unwrap
// method, so the standard library's errors.Is does not see through them.
var (
	ErrNotFound          = errors.New("rrd: not found")
	ErrIOFailure         = errors.New("rrd: io failure")
	ErrInvalidDefinition = errors.New("rrd: invalid definition")
	ErrInvalidTimestamp  = errors.New("rrd: invalid timestamp")
	ErrUnknownDatasource = errors.New("rrd: unknown datasource")
	ErrUnknownArchive    = errors.New("rrd: unknown archive")
	ErrNoMatchingArchive = errors.New("rrd: no matching archive")
	ErrClosed            = errors.New("rrd: database is closed")
	ErrIncompatibleCopy  = errors.New("rrd: incompatible copy target")
)

// errOnce is a first-write-wins error latch, used when closing several
// owned resources so only the first failure is reported. Grounded on
// the errors.Once pattern in encoding/pam/pamwriter.go's Writer.Close.
type errOnce struct {
	err error
}

func (e *errOnce) set(err error) {
	if err != nil && e.err == nil {
		e.err = err
	}
}

func (e *errOnce) get() error {
	return e.err
}

// errWrapf wraps a sentinel with additional context, matching the
// teacher's errors.Wrapf idiom (encoding/pam/sharder.go).
func errWrapf(sentinel error, format string, args ...interface{}) error {
	return errors.Wrapf(sentinel, format, args...)
}
