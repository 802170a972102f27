package internalerr

import "errors"

// Sentinel errors for common cases
var (
	// ErrInsufficientData means the dataset is below an analyzer's
	// statistical minimum (e.g. <50 labeled records, <4 entities).
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNotSignificant marks an association that was computed but
	// rejected by a significance test (p >= 0.05).
	ErrNotSignificant = errors.New("not statistically significant")

	// ErrResourceExhausted means a memory or time budget was exceeded
	// mid-run; partial findings may still be available.
	ErrResourceExhausted = errors.New("resource budget exhausted")

	// ErrDegraded marks an optional dependency running in fallback mode.
	// It is recorded as a warning, never a hard failure.
	ErrDegraded = errors.New("dependency degraded")

	// ErrRunInProgress means an analysis run already holds the lease
	// for the requested project.
	ErrRunInProgress = errors.New("analysis run already in progress")

	ErrNotFound          = errors.New("not found")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrUnsupportedFormat = errors.New("unsupported export format")
)
