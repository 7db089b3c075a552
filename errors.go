// errors.go -- error kinds surfaced by the dedup pipeline

package dedup

import "errors"

var (
	// ErrConfig is returned when the configuration is inconsistent;
	// e.g. b*r != num_perm, or a threshold outside (0, 1).
	ErrConfig = errors.New("invalid configuration")

	// ErrInput is returned for a malformed input record at the source
	// boundary (missing or mistyped id/text column).
	ErrInput = errors.New("malformed input record")

	// ErrCancelled is returned when cooperative cancellation fires.
	// Partial state is discarded and no output is written.
	ErrCancelled = errors.New("run cancelled")

	// ErrInternal indicates an invariant violation inside the pipeline.
	// Seeing it means there is a bug.
	ErrInternal = errors.New("internal invariant violation")
)
