package workflow

import "context"

// =============================================================================
// STORE CONTRACTS - the engine's two collaborators
// =============================================================================

// StagingStore holds the draft snapshot of one collection.
type StagingStore[T Record] interface {
	// LoadStaging returns the current staging snapshot. An absent snapshot
	// is an empty slice, not an error.
	LoadStaging(ctx context.Context) ([]T, error)

	// SaveStaging replaces the whole staging snapshot with items.
	SaveStaging(ctx context.Context, items []T) error

	// DeleteStaging removes one record. A missing record must yield an
	// error for which IsNotFound is true.
	DeleteStaging(ctx context.Context, id string) error
}

// ProductionStore holds the committed snapshot of one collection.
type ProductionStore[T Record] interface {
	LoadProduction(ctx context.Context) ([]T, error)

	// Promote makes the staging snapshot the new production state and
	// clears staging. The store decides whether there is anything to promote.
	Promote(ctx context.Context) error
}
