package replay

import "errors"

// Sentinel errors specific to log replay and PMA synthesis.
// Shape/alignment/argument problems reuse merkle.ErrOutOfRange and
// merkle.ErrInvalidArgument so callers can errors.Is against a single
// taxonomy regardless of package.
var (
	// ErrTooFewAccesses: the log was exhausted before the primitive call
	// that needed the next record.
	ErrTooFewAccesses = errors.New("too few accesses in log")

	// ErrTooManyAccesses: finish() was called with unconsumed records
	// remaining in the log.
	ErrTooManyAccesses = errors.New("too many accesses in log")

	// ErrProofMismatch: a proof's root hash disagrees with the
	// verifier's current root, or the sibling chain fails to reproduce
	// it after rolling up.
	ErrProofMismatch = errors.New("proof mismatch")

	// ErrValueMismatch: recorded read bytes disagree with the proof's
	// target hash, or recorded written bytes disagree with the value
	// the caller supplied.
	ErrValueMismatch = errors.New("value mismatch")

	// ErrInvalidFlags: a PMA descriptor's M/IO/E discriminant is not
	// one-hot, or its device discriminant is unrecognized.
	ErrInvalidFlags = errors.New("invalid PMA flags")

	// ErrTooManyPMAs: the mock PMA pool is exhausted.
	ErrTooManyPMAs = errors.New("too many PMAs")
)
