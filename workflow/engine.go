/*
engine.go - StagingWorkflow engine

PURPOSE:
  Owns one collection's State and exposes the operations the UI calls.
  Every state change goes through Reduce; store round trips happen outside
  the state lock.

OPERATIONS:
  Add, Edit            local only, mark dirty
  Delete               optimistic removal, rolled back on store failure
  SaveToStaging        replace-all write of Items to staging
  UploadToProduction   promote staging, clear local items
  RefreshData          load both stores and reconcile (reconcile.go)

FAILURES:
  No operation returns an error or panics on store failure. Failures land in
  State.Error; successes in State.Success, which clears itself after
  SuccessTTL.

CONCURRENCY:
  State is guarded by a mutex and the engine is its only writer. Save and
  upload are serialized per engine; overlapping calls of the same operation
  share one store request (singleflight). Saves share only while Items are
  unchanged. Delete and refresh are not
  serialized.

SEE ALSO:
  - reducer.go: state transitions
  - store.go: StagingStore / ProductionStore
*/
package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultSuccessTTL is how long a success message stays visible.
const DefaultSuccessTTL = 3 * time.Second

// Options configures an Engine.
type Options[T Record] struct {
	// Type is the singular domain tag used in messages and logs ("supplier").
	Type string

	// Plural is used for whole-collection messages. Defaults to Type+"s".
	Plural string

	// SuccessTTL overrides DefaultSuccessTTL. Negative disables auto-clear.
	SuccessTTL time.Duration

	// Equal compares staging and production records. Defaults to CanonicalEqual.
	Equal EqualFunc[T]

	Logger *zap.Logger
}

// Engine is the staging workflow for one collection of T.
type Engine[T Record] struct {
	staging    StagingStore[T]
	production ProductionStore[T]

	typ    string
	plural string
	ttl    time.Duration
	equal  EqualFunc[T]
	log    *zap.Logger

	// Message prefixes, e.g. "Supplier" and "Suppliers".
	typTitle    string
	pluralTitle string

	mu        sync.Mutex
	state     State[T]
	rev       uint64 // bumped on every change to Items
	lastDiff  Diff
	seq       uint64 // success message generation
	timer     *time.Timer
	listeners map[int]func(State[T])
	nextSub   int
	closed    bool

	opMu   sync.Mutex
	flight singleflight.Group
}

// NewEngine creates an engine over the given stores.
func NewEngine[T Record](staging StagingStore[T], production ProductionStore[T], opts Options[T]) *Engine[T] {
	typ := opts.Type
	if typ == "" {
		typ = "item"
	}
	plural := opts.Plural
	if plural == "" {
		plural = typ + "s"
	}
	ttl := opts.SuccessTTL
	if ttl == 0 {
		ttl = DefaultSuccessTTL
	}
	equal := opts.Equal
	if equal == nil {
		equal = CanonicalEqual[T]
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	title := cases.Title(language.English)
	return &Engine[T]{
		staging:     staging,
		production:  production,
		typ:         typ,
		plural:      plural,
		ttl:         ttl,
		equal:       equal,
		log:         logger.With(zap.String("domain", typ)),
		typTitle:    title.String(typ),
		pluralTitle: title.String(plural),
		state:       State[T]{Items: []T{}},
		listeners:   make(map[int]func(State[T])),
	}
}

// =============================================================================
// OBSERVATION
// =============================================================================

// State returns a copy of the current state.
func (e *Engine[T]) State() State[T] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// LastDiff returns the diff computed by the most recent RefreshData.
func (e *Engine[T]) LastDiff() Diff {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastDiff
}

// Subscribe registers fn to be called with the new state after every
// transition. The returned func removes the subscription.
func (e *Engine[T]) Subscribe(fn func(State[T])) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

// DismissError clears the error banner.
func (e *Engine[T]) DismissError() {
	e.dispatch(ErrorCleared{})
}

// Close stops the pending success auto-clear. The engine stays usable but
// no longer clears success messages on its own.
func (e *Engine[T]) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// =============================================================================
// LOCAL MUTATIONS
// =============================================================================

// Add appends item to the working set. The id must be non-empty and not
// already present.
func (e *Engine[T]) Add(item T) {
	id := item.RecordID()
	if id == "" {
		e.dispatch(OperationFailed{Message: fmt.Sprintf("Cannot add %s without an id", e.typ)})
		return
	}

	_, applied := e.update(func(s State[T]) Action {
		if s.IndexOf(id) >= 0 {
			return nil
		}
		return ItemAdded[T]{Item: item, Message: e.typTitle + " added"}
	})
	if !applied {
		e.dispatch(OperationFailed{Message: fmt.Sprintf("A %s with id %q already exists", e.typ, id)})
		return
	}
	e.log.Debug("item added", zap.String("id", id))
}

// Edit merges patch over the record with the given id. Unknown ids are
// ignored.
func (e *Engine[T]) Edit(id string, patch Patch) {
	e.mu.Lock()
	i := e.state.IndexOf(id)
	var current T
	if i >= 0 {
		current = e.state.Items[i]
	}
	e.mu.Unlock()

	if i < 0 {
		e.log.Debug("edit of unknown id ignored", zap.String("id", id))
		return
	}

	merged, err := Merge(current, patch)
	if err != nil {
		e.log.Warn("edit failed", zap.String("id", id), zap.Error(err))
		e.dispatch(OperationFailed{Message: fmt.Sprintf("Failed to update %s: %v", e.typ, err)})
		return
	}

	e.dispatch(ItemEdited[T]{Item: merged, Message: e.typTitle + " updated"})
}

// =============================================================================
// STORE ROUND TRIPS
// =============================================================================

// Delete removes id locally at once, then from staging. A store "not found"
// is treated as already deleted; any other failure restores the record.
// An id unknown locally triggers RefreshData instead.
func (e *Engine[T]) Delete(ctx context.Context, id string) {
	var (
		found    bool
		index    int
		removed  T
		wasDirty bool
	)
	e.update(func(s State[T]) Action {
		index = s.IndexOf(id)
		if index < 0 {
			return nil
		}
		found = true
		removed = s.Items[index]
		wasDirty = s.IsDirty
		return ItemRemoved{ID: id}
	})

	if !found {
		e.log.Info("delete of unknown id, resynchronizing", zap.String("id", id))
		e.RefreshData(ctx)
		return
	}

	err := e.staging.DeleteStaging(ctx, id)
	switch {
	case err == nil:
		e.dispatch(Succeeded{Message: e.typTitle + " deleted from staging"})
	case IsNotFound(err):
		e.log.Info("delete target already absent from staging", zap.String("id", id))
		e.dispatch(Succeeded{Message: e.typTitle + " was already removed from staging"})
	default:
		e.log.Warn("delete failed, rolling back", zap.String("id", id), zap.Error(err))
		e.dispatch(RemovalRolledBack[T]{
			Index:    index,
			Item:     removed,
			WasDirty: wasDirty,
			Message:  e.failure("delete", "from staging", err),
		})
	}
}

// SaveToStaging writes the whole working set to staging. It reports whether
// the write succeeded; on failure the state is left as it was.
//
// Calls share a request only while the items are unchanged: a save issued
// after an edit never joins a save that is still sending the older items.
func (e *Engine[T]) SaveToStaging(ctx context.Context) bool {
	e.mu.Lock()
	rev := e.rev
	e.mu.Unlock()

	v, _, _ := e.flight.Do(fmt.Sprintf("save:%d", rev), func() (any, error) {
		e.opMu.Lock()
		defer e.opMu.Unlock()
		return e.save(ctx), nil
	})
	return v.(bool)
}

func (e *Engine[T]) save(ctx context.Context) bool {
	e.mu.Lock()
	items := cloneItems(e.state.Items)
	rev := e.rev
	e.mu.Unlock()
	if items == nil {
		items = []T{}
	}

	e.dispatch(OperationStarted{})
	if err := e.staging.SaveStaging(ctx, items); err != nil {
		e.log.Warn("save to staging failed", zap.Error(err))
		e.dispatch(OperationFailed{Message: e.failure("save", "to staging", err)})
		return false
	}

	e.update(func(State[T]) Action {
		// Edits made while the request was in flight are not in staging.
		return StagingSaved{
			Message:    e.pluralTitle + " saved to staging",
			StillDirty: e.rev != rev,
		}
	})
	e.log.Info("saved to staging", zap.Int("count", len(items)))
	return true
}

// UploadToProduction promotes the staging snapshot. On success the local
// working set is cleared; callers refresh to see the new production state.
func (e *Engine[T]) UploadToProduction(ctx context.Context) bool {
	v, _, _ := e.flight.Do("upload", func() (any, error) {
		e.opMu.Lock()
		defer e.opMu.Unlock()
		return e.upload(ctx), nil
	})
	return v.(bool)
}

func (e *Engine[T]) upload(ctx context.Context) bool {
	e.dispatch(OperationStarted{})
	if err := e.production.Promote(ctx); err != nil {
		e.log.Warn("upload to production failed", zap.Error(err))
		e.dispatch(OperationFailed{Message: e.failure("upload", "to production", err)})
		return false
	}

	e.dispatch(ProductionUploaded{Message: e.pluralTitle + " uploaded to production"})
	e.log.Info("uploaded to production")
	return true
}

// RefreshData loads staging and production and presents whichever one
// reconciliation selects. A staging read failure is treated as no staging;
// a production read failure keeps the current items and sets Error.
func (e *Engine[T]) RefreshData(ctx context.Context) {
	e.dispatch(LoadStarted{})

	staged, err := e.staging.LoadStaging(ctx)
	if err != nil {
		e.log.Warn("staging unavailable, using production", zap.Error(err))
		staged = nil
	}

	prod, err := e.production.LoadProduction(ctx)
	if err != nil {
		e.log.Warn("refresh failed", zap.Error(err))
		e.dispatch(LoadFailed{Message: e.failure("load", "from production", err)})
		return
	}

	items, hasStaging, isDirty, d := Reconcile(staged, prod, e.equal)
	e.log.Debug("reconciled",
		zap.Int("staging", len(staged)),
		zap.Int("production", len(prod)),
		zap.Bool("pending", hasStaging),
		zap.Strings("changed", d.Changed),
		zap.Strings("added", d.Added),
		zap.Strings("removed", d.Removed))

	e.update(func(State[T]) Action {
		e.lastDiff = d
		return Loaded[T]{Items: items, HasStaging: hasStaging, IsDirty: isDirty}
	})
}

// =============================================================================
// DISPATCH
// =============================================================================

func (e *Engine[T]) dispatch(a Action) State[T] {
	s, _ := e.update(func(State[T]) Action { return a })
	return s
}

// update runs decide under the state lock. A nil action leaves the state
// untouched and reports false. Listeners run after the lock is released.
func (e *Engine[T]) update(decide func(State[T]) Action) (State[T], bool) {
	e.mu.Lock()
	a := decide(e.state)
	if a == nil {
		s := e.state.clone()
		e.mu.Unlock()
		return s, false
	}

	e.state = Reduce(e.state, a)
	if changesItems(a) {
		e.rev++
	}
	if msg := successMessage(a); msg != "" {
		e.scheduleClearLocked()
	}

	next := e.state.clone()
	listeners := make([]func(State[T]), 0, len(e.listeners))
	for _, fn := range e.listeners {
		listeners = append(listeners, fn)
	}
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return next, true
}

func (e *Engine[T]) scheduleClearLocked() {
	e.seq++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.ttl < 0 || e.closed {
		return
	}
	gen := e.seq
	e.timer = time.AfterFunc(e.ttl, func() {
		e.update(func(State[T]) Action {
			if e.closed || gen != e.seq {
				return nil
			}
			return SuccessCleared{}
		})
	})
}

func (e *Engine[T]) failure(verb, location string, err error) string {
	if reason := Reason(err); reason != "" {
		return reason
	}
	msg := fmt.Sprintf("Failed to %s %s %s", verb, e.typ, location)
	if status := StatusOf(err); status != 0 {
		msg += fmt.Sprintf(" (status %d)", status)
	}
	return msg
}

func changesItems(a Action) bool {
	switch a.(type) {
	case LoadStarted, LoadFailed, StagingSaved, OperationStarted, OperationFailed,
		Succeeded, SuccessCleared, ErrorCleared:
		return false
	}
	return true
}

func successMessage(a Action) string {
	switch a := a.(type) {
	case StagingSaved:
		return a.Message
	case ProductionUploaded:
		return a.Message
	case Succeeded:
		return a.Message
	case interface{ successText() string }:
		return a.successText()
	}
	return ""
}
