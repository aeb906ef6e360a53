package posegraph

import "github.com/pkg/errors"

// InvariantError marks a programming-contract violation: a caller did
// something the pose graph's contract forbids (modifying a Finished or
// Deleted trajectory, referencing a stale submap, calling
// AddFixedFramePoseData in this 2D-only back-end). These are never
// recoverable by construction — by the time one is raised, the pose graph's
// internal state may already be inconsistent — so raiseInvariant logs and
// panics rather than returning an error a caller might paper over.
type InvariantError struct {
	cause error
}

func (e *InvariantError) Error() string { return e.cause.Error() }
func (e *InvariantError) Unwrap() error { return e.cause }

func raiseInvariant(logger logger, format string, args ...interface{}) {
	err := &InvariantError{cause: errors.Errorf(format, args...)}
	logger.Errorf("invariant violation: %s", err)
	panic(err)
}
