/*
Package store defines server-side persistence for staged collections.

PURPOSE:
  Each domain (suppliers, taxes, settings, ...) has two areas holding an
  ordered collection of JSON documents:
  - staging:    the draft snapshot written wholesale by the admin console
  - production: the committed snapshot the public site reads

KEY OPERATIONS:
  List:    read one area in order
  Replace: replace-all write of one area
  Delete:  remove one document (ErrNotFound if absent)
  Promote: atomically copy staging over production and clear staging
  PurgeIfUnchanged: drop an area without promoting, only if it still
           holds what the caller read (stale staging cleanup)

ATOMIC PROMOTION:
  Promote either replaces production and clears staging, or changes
  nothing. An empty staging area yields ErrNothingToPromote.

IMPLEMENTATIONS:
  - store/sqlite: SQLite (production)
  - store/memory: in-memory (tests, dev)

SEE ALSO:
  - api/handlers.go: REST resources over Store
*/
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when a document id is absent from the area.
	ErrNotFound = errors.New("document not found")

	// ErrNothingToPromote is returned by Promote when staging is empty.
	ErrNothingToPromote = errors.New("no staging data to promote")

	// ErrDuplicateID is returned by Replace when two documents share an id.
	ErrDuplicateID = errors.New("duplicate document id")

	// ErrChanged is returned by PurgeIfUnchanged when the area was written
	// after the caller read it.
	ErrChanged = errors.New("area changed since it was read")
)

// =============================================================================
// TYPES
// =============================================================================

// Area is one side of a domain.
type Area string

const (
	Staging    Area = "staging"
	Production Area = "production"
)

// Document is one stored record. Data is the record's JSON as received;
// it is marshaled back verbatim.
type Document struct {
	ID   string
	Data json.RawMessage
}

func (d Document) RecordID() string { return d.ID }

// MarshalJSON returns the stored record.
func (d Document) MarshalJSON() ([]byte, error) {
	if len(d.Data) == 0 {
		return []byte("null"), nil
	}
	return d.Data, nil
}

// Promotion is an audit entry for one successful Promote.
type Promotion struct {
	ID          string
	Domain      string
	RecordCount int
	PromotedAt  time.Time
}

// PurgeRun is an audit entry for a stale-staging cleanup.
type PurgeRun struct {
	ID          string
	Domain      string
	RecordCount int
	PurgedAt    time.Time
}

// =============================================================================
// STORE
// =============================================================================

// Store persists staged collections. Implementations must be safe for
// concurrent use.
type Store interface {
	List(ctx context.Context, area Area, domain string) ([]Document, error)
	Replace(ctx context.Context, area Area, domain string, docs []Document) error
	Delete(ctx context.Context, area Area, domain, id string) error

	// Promote copies staging over production, clears staging, and records a
	// Promotion, all or nothing.
	Promote(ctx context.Context, domain string) (Promotion, error)

	// PurgeIfUnchanged clears an area and returns how many documents it
	// held, provided the area still equals seen (same ids, order and
	// bytes). Otherwise it changes nothing and returns ErrChanged.
	PurgeIfUnchanged(ctx context.Context, area Area, domain string, seen []Document) (int, error)

	Promotions(ctx context.Context, domain string, limit int) ([]Promotion, error)
	RecordPurge(ctx context.Context, run PurgeRun) error
	PurgeRuns(ctx context.Context, domain string, limit int) ([]PurgeRun, error)

	// Reset clears every area of every domain and the audit logs.
	Reset(ctx context.Context) error
}

// CheckUnique returns ErrDuplicateID if two documents share an id.
func CheckUnique(docs []Document) error {
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		if seen[d.ID] {
			return ErrDuplicateID
		}
		seen[d.ID] = true
	}
	return nil
}

// SameDocuments reports whether a and b hold the same ids and bytes in the
// same order.
func SameDocuments(a, b []Document) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || !bytes.Equal(a[i].Data, b[i].Data) {
			return false
		}
	}
	return true
}
