/*
Package workflow provides the staging → production promotion engine.

PURPOSE:
  Draft edits to a collection of records are buffered locally, flushed to a
  staging area, and promoted wholesale to production. The engine decides on
  every refresh whether the staging snapshot is real pending work or a stale
  leftover copy of production.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record: anything with a stable string id
  - State: the single state container the UI observes
  - Patch: a partial update keyed by JSON field name
  - Diff: the outcome of comparing staging against production

DATA FLOW:
  UI action → Engine mutates Items, marks dirty
  SaveToStaging()      → StagingStore.SaveStaging (replace-all)
  UploadToProduction() → ProductionStore.Promote, local items cleared
  RefreshData()        → load both, ComputeDiff, present staging or production

SEE ALSO:
  - reducer.go: every state transition
  - engine.go: operations and store orchestration
  - reconcile.go: diff-then-decide
*/
package workflow

// =============================================================================
// RECORD
// =============================================================================

// Record is a domain entity tracked by the engine. Ids must be unique within
// a collection; unsaved rows carry a temporary id (see NewTempID).
type Record interface {
	RecordID() string
}

// Patch is a partial record keyed by JSON field name.
type Patch map[string]any

// =============================================================================
// STATE
// =============================================================================

// State is the UI-facing view of a collection. An empty Error or Success
// means no message is set.
type State[T Record] struct {
	Items      []T
	IsDirty    bool
	HasStaging bool
	Loading    bool
	Error      string
	Success    string
}

// IndexOf returns the position of id in Items, or -1.
func (s State[T]) IndexOf(id string) int {
	for i, item := range s.Items {
		if item.RecordID() == id {
			return i
		}
	}
	return -1
}

func (s State[T]) clone() State[T] {
	s.Items = cloneItems(s.Items)
	return s
}

func cloneItems[T any](items []T) []T {
	if items == nil {
		return nil
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}

// =============================================================================
// DIFF
// =============================================================================

// Diff describes how a staging snapshot differs from production.
type Diff struct {
	HasDifferentContent bool
	HasDifferentIDs     bool

	Changed []string // same id, different content
	Added   []string // staging only
	Removed []string // production only
}

// Pending reports whether staging holds real, unpromoted work.
func (d Diff) Pending() bool {
	return d.HasDifferentContent || d.HasDifferentIDs
}
