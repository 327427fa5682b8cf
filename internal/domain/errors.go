package domain

import "errors"

// Error kinds surfaced by an analysis run. All of them terminate the run;
// callers match them with errors.Is.
var (
	// ErrDataUnavailable means a requested asset or date range has no data
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrDegenerateInput covers empty buckets, zero-variance denominators
	// and singular systems
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrAlignmentMismatch means series of unequal length or date coverage
	ErrAlignmentMismatch = errors.New("alignment mismatch")
)
