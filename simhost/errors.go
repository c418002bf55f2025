package simhost

import "github.com/pkg/errors"

// Error kinds the core recognizes, per the scheduler's error-handling
// design. Call sites compare with errors.Is against these sentinels;
// wrapping with github.com/pkg/errors preserves that behavior through
// additional context.
var (
	// ErrUnavailable means no machine or VM meets the request's
	// constraints right now.
	ErrUnavailable = errors.New("simhost: unavailable")
	// ErrBusy means the requested transition collides with one already
	// outstanding on the same entity.
	ErrBusy = errors.New("simhost: busy")
	// ErrIncompatible means a VM-kind/CPU/GPU/memory mismatch that the
	// coercion rules cannot repair.
	ErrIncompatible = errors.New("simhost: incompatible")
	// ErrTransient means the underlying simulator call raised on a
	// single entity; callers should skip that entity this tick.
	ErrTransient = errors.New("simhost: transient")
	// ErrFatal means an invariant (I1-I6) was violated. Returning it
	// does not by itself halt the scheduler (see scheduler.Halt).
	ErrFatal = errors.New("simhost: fatal")
)

// Unavailable wraps an error as ErrUnavailable, attaching context.
func Unavailable(format string, args ...interface{}) error {
	return errors.Wrapf(ErrUnavailable, format, args...)
}

// Busy wraps an error as ErrBusy, attaching context.
func Busy(format string, args ...interface{}) error {
	return errors.Wrapf(ErrBusy, format, args...)
}

// Incompatible wraps an error as ErrIncompatible, attaching context.
func Incompatible(format string, args ...interface{}) error {
	return errors.Wrapf(ErrIncompatible, format, args...)
}

// Transient wraps an error as ErrTransient, attaching context.
func Transient(format string, args ...interface{}) error {
	return errors.Wrapf(ErrTransient, format, args...)
}

// Fatal wraps an error as ErrFatal, attaching context.
func Fatal(format string, args ...interface{}) error {
	return errors.Wrapf(ErrFatal, format, args...)
}
