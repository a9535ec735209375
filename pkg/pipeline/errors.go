// Package pipeline runs the multi-stage ingestion flow: it discovers photos,
// drives each one through the enrichment stages, and keeps the work ledger
// as the single source of truth for what has already happened.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"

	"github.com/mbianchi/photarc/pkg/vision"
)

// ErrorKind classifies a stage failure and decides what the ledger records.
type ErrorKind int

const (
	// Transient failures (I/O hiccups, timeouts) count an attempt and leave
	// the row eligible for retry until the attempt budget runs out.
	Transient ErrorKind = iota
	// Permanent failures (corrupt image, undecodable format) mark the row
	// skipped immediately; retrying cannot help, and downstream stages must
	// not block on it.
	Permanent
	// Unavailable means the stage's backing capability is absent (no vision
	// endpoint, no face model). The row is marked skipped, not failed.
	Unavailable
	// Cancelled means the scan was stopped; the row returns to pending.
	Cancelled
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case Unavailable:
		return "unavailable"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// permanentError wraps an error to force Permanent classification.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// PermanentStageError marks err as not worth retrying.
func PermanentStageError(format string, args ...any) error {
	return &permanentError{err: fmt.Errorf(format, args...)}
}

// unavailableError wraps an error to force Unavailable classification.
type unavailableError struct{ err error }

func (e *unavailableError) Error() string { return e.err.Error() }
func (e *unavailableError) Unwrap() error { return e.err }

// UnavailableStageError marks err as a missing capability.
func UnavailableStageError(format string, args ...any) error {
	return &unavailableError{err: fmt.Errorf(format, args...)}
}

// Classify maps an error to its ledger consequence.
func Classify(err error) ErrorKind {
	if err == nil {
		return Transient
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled
	}

	var perm *permanentError
	if errors.As(err, &perm) {
		return Permanent
	}
	var unavail *unavailableError
	if errors.As(err, &unavail) {
		return Unavailable
	}

	switch {
	case errors.Is(err, vision.ErrDisabled), errors.Is(err, vision.ErrUnavailable):
		return Unavailable
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		// The file vanished or is unreadable right now; a later scan can
		// retry once the filesystem settles.
		return Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	return Transient
}
