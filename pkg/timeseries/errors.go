package timeseries

import "errors"

// Error kinds shared by the engine packages. Call sites wrap them with
// additional context, so compare with errors.Is.
var (
	// ErrExhausted is returned by Next when no further synchronized
	// timestamp exists.
	ErrExhausted = errors.New("iterator exhausted")

	// ErrUnsupportedCapability is returned when a feature was not enabled
	// at construction time, or cannot be combined with another one.
	ErrUnsupportedCapability = errors.New("unsupported capability")

	// ErrInvalidState is returned for calls that are only valid on the most
	// recent data point of an iterator.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidArgument is returned for rejected constructor arguments.
	ErrInvalidArgument = errors.New("invalid argument")
)
