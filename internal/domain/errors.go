package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates that a requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource with the same identity
	// already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates that a caller-provided value violates
	// a precondition.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict indicates that a release is already in progress for the
	// fleet member, so a second deploy is rejected.
	ErrConflict = errors.New("release already in progress")

	// ErrSampling indicates that the metric source failed for one tick.
	// The tick is retained as a no-op and the previous decision stands.
	ErrSampling = errors.New("metric sampling failed")

	// ErrScaleCall indicates that a fleet scaler call failed. The loop
	// keeps ticking; the next evaluation retries if the condition persists.
	ErrScaleCall = errors.New("scale call failed")
)

// DriverError reports a fleet member driver failure during stop, install,
// or start. Driver failures indicate a deterministic defect and are never
// retried; the release ends Failed.
type DriverError struct {
	Op     string
	Member MemberID
	Err    error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("driver %s on member %q: %v", e.Op, e.Member, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// TimeoutError reports that the service process never became live within
// the configured wait bound. Diagnostics carries the driver's best-effort
// snapshot (last status, recent log tail).
type TimeoutError struct {
	Member      MemberID
	Waited      time.Duration
	Diagnostics string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("member %q not live after %s", e.Member, e.Waited)
}

// ValidationExhaustedError reports that every health validation attempt
// failed. It triggers the rollback signal; it is not fatal to the
// controller itself.
type ValidationExhaustedError struct {
	Member   MemberID
	Attempts int
	Reason   string
}

func (e *ValidationExhaustedError) Error() string {
	return fmt.Sprintf("validation exhausted after %d attempts on member %q: %s", e.Attempts, e.Member, e.Reason)
}
