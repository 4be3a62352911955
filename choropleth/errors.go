package choropleth

import "errors"

var (
	// ErrNotReady is returned by interaction entry points before the
	// initial data load has completed. No state is changed.
	ErrNotReady = errors.New("widget not ready")

	// ErrUnknownColumn is returned when a column name is not registered.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrUnknownRegion is returned when an index value matches no region.
	ErrUnknownRegion = errors.New("unknown region")

	// ErrMissingIndex is returned by Load when a feature has no value for
	// the index column.
	ErrMissingIndex = errors.New("missing index value")

	// ErrDuplicateIndex is returned by Load when two features share an
	// index value.
	ErrDuplicateIndex = errors.New("duplicate index value")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrLoopClosed is returned when work is sent to a stopped Loop.
	ErrLoopClosed = errors.New("event loop closed")
)
