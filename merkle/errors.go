package merkle

import "errors"

// Sentinel errors for this package's error taxonomy. Every fallible
// operation wraps one of these with fmt.Errorf("...: %w", ...) so
// callers can use errors.Is instead of matching on message text.
var (
	// ErrOutOfRange: a log2 parameter or address lies outside the
	// permitted interval for this geometry.
	ErrOutOfRange = errors.New("out of range")

	// ErrInvalidArgument: a misaligned address, wrong data length, or
	// otherwise malformed request.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDirty: the tree was queried while an update bracket is open,
	// or end_update could not fully restore consistency.
	ErrDirty = errors.New("dirty")
)
