package ops

import (
	"errors"
	"fmt"
)

// Fatal phase errors. All of these abort the pipeline before any state
// mutation; target-level failures are carried in Outcome values instead.
var (
	ErrManifestNotFound    = errors.New("manifest not found")
	ErrManifestMalformed   = errors.New("manifest malformed")
	ErrRegionUnresolvable  = errors.New("region unresolvable from manifest path")
	ErrSnapshotUnreadable  = errors.New("provisioning snapshot unreadable")
	ErrNoResolvableTargets = errors.New("no resolvable targets")
)

// PreconditionError marks a target whose resource is not ready for the
// requested action (wrong lifecycle state, insufficient capacity). It is
// reported as precondition-failed and not retried within the run.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s", e.Reason)
}

// Preconditionf builds a PreconditionError with a formatted reason.
func Preconditionf(format string, args ...any) error {
	return &PreconditionError{Reason: fmt.Sprintf(format, args...)}
}

// IsPrecondition reports whether err is (or wraps) a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
