/*
errors.go - Error types for store round trips

ERROR CATEGORIES:
  1. Not-found-on-delete - benign, the desired end state already holds
  2. Store read/write failure - network error, non-2xx, unparseable body

  Local lookup misses are not errors: Edit ignores them, Delete refreshes.

USAGE:
  Store implementations return *StoreError so the engine can build the
  user-visible message from the store's own reason or fall back to
  "Failed to <verb> <type> <location> (status N)".

    if workflow.IsNotFound(err) {
        // already deleted
    }
*/
package workflow

import (
	"errors"
	"fmt"
	"net/http"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when the store has no record with the given id.
	ErrNotFound = errors.New("record not found")

	// ErrStore is the generic store failure.
	ErrStore = errors.New("store request failed")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// StoreError is a failed store round trip.
type StoreError struct {
	Domain   string // e.g. "supplier"
	Op       string // verb: "load", "save", "delete", "upload"
	Location string // "staging" or "production"
	Status   int    // HTTP-equivalent status, 0 if none was received
	Reason   string // store-reported reason, if any
	Err      error
}

func (e *StoreError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	msg := fmt.Sprintf("failed to %s %s %s", e.Op, e.Domain, e.Location)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	if e.Err != nil {
		return e.Err
	}
	return ErrStore
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if err reports a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Reason returns the store-reported reason carried by err, if any.
func Reason(err error) string {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Reason
	}
	return ""
}

// StatusOf returns the status carried by err, or 0.
func StatusOf(err error) int {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
