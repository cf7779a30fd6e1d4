package diag

import "errors"

// Sentinel errors of the module. ErrCancelled is the one returned by public
// APIs, wrapped via fmt.Errorf's %w; the invariant sentinels below are
// declared but not returned by any API in the module. Every other failure
// accumulates as a Diagnostic instead of an error.

// === Invariant violations ===
var (
	// ErrEmptyPick names a choice from an empty sequence (e.g. an empty
	// enum). The generator reports an empty enum as an "empty-enum" warning
	// diagnostic and does not return this error.
	ErrEmptyPick = errors.New("pick from empty sequence")

	// ErrCacheCorruption names a ProcessedSchema cache whose state violates
	// its own invariants. No API in the module returns it.
	ErrCacheCorruption = errors.New("processed schema cache corrupted")

	// ErrMalformedProcessedSchema names a ProcessedSchema with a broken
	// internal invariant (dangling sub-pointer, missing root). The validator
	// reports such a schema as a *validator.InvariantError, which does not
	// wrap this sentinel.
	ErrMalformedProcessedSchema = errors.New("malformed processed schema")
)

// === Cancellation ===
var (
	// ErrCancelled is returned when a caller-supplied cancellation signal
	// fires during a long-running operation.
	ErrCancelled = errors.New("operation cancelled")
)
