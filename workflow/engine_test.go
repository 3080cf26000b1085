package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/staging-engine/workflow"
)

// =============================================================================
// LOCAL MUTATIONS
// =============================================================================

func TestEngine_Add_MarksDirty(t *testing.T) {
	e := newTestEngine(&fakeStores{})

	e.Add(acme())

	s := e.State()
	assert.Equal(t, []supplier{acme()}, s.Items)
	assert.True(t, s.IsDirty)
	assert.Equal(t, "Supplier added", s.Success)
	assert.Empty(t, s.Error)
}

func TestEngine_Add_DuplicateIDRejected(t *testing.T) {
	e := newTestEngine(&fakeStores{})
	e.Add(acme())

	dup := acme()
	dup.Name = "Other"
	e.Add(dup)

	s := e.State()
	assert.Len(t, s.Items, 1)
	assert.Equal(t, "Acme", s.Items[0].Name)
	assert.Contains(t, s.Error, "already exists")
}

func TestEngine_Add_EmptyIDRejected(t *testing.T) {
	e := newTestEngine(&fakeStores{})

	e.Add(supplier{Name: "Nameless"})

	s := e.State()
	assert.Empty(t, s.Items)
	assert.False(t, s.IsDirty)
	assert.NotEmpty(t, s.Error)
}

func TestEngine_Edit_MergesPatch(t *testing.T) {
	f := &fakeStores{production: []supplier{acme()}}
	e := newTestEngine(f)
	e.RefreshData(context.Background())

	e.Edit("s1", workflow.Patch{"isActive": false})

	s := e.State()
	require.Len(t, s.Items, 1)
	assert.Equal(t, supplier{ID: "s1", Name: "Acme", IsActive: false}, s.Items[0])
	assert.True(t, s.IsDirty)
	assert.Equal(t, "Supplier updated", s.Success)
}

func TestEngine_Edit_UnknownIDIsNoop(t *testing.T) {
	f := &fakeStores{production: []supplier{acme()}}
	e := newTestEngine(f)
	e.RefreshData(context.Background())
	before := e.State()

	e.Edit("missing", workflow.Patch{"name": "x"})

	after := e.State()
	assert.Equal(t, before.Items, after.Items)
	assert.False(t, after.IsDirty)
	assert.Empty(t, after.Error)
}

func TestEngine_DirtyStaysUntilSave(t *testing.T) {
	// GIVEN: a sequence of local mutations
	// THEN: dirty after the first, and until the next successful save
	f := &fakeStores{}
	e := newTestEngine(f)
	ctx := context.Background()

	e.Add(acme())
	assert.True(t, e.State().IsDirty)
	e.Add(bolts())
	assert.True(t, e.State().IsDirty)
	e.Edit("s2", workflow.Patch{"name": "Bolts & Nuts"})
	assert.True(t, e.State().IsDirty)

	f.saveErr = errors.New("boom")
	assert.False(t, e.SaveToStaging(ctx))
	assert.True(t, e.State().IsDirty, "failed save must not clear dirty")

	f.saveErr = nil
	assert.True(t, e.SaveToStaging(ctx))
	assert.False(t, e.State().IsDirty)

	e.Edit("s1", workflow.Patch{"isActive": false})
	assert.True(t, e.State().IsDirty)
}

// =============================================================================
// SAVE
// =============================================================================

func TestEngine_SaveToStaging_Idempotent(t *testing.T) {
	f := &fakeStores{}
	e := newTestEngine(f)
	ctx := context.Background()
	e.Add(acme())
	e.Add(bolts())

	require.True(t, e.SaveToStaging(ctx))
	first := f.stagingSnapshot()
	s := e.State()
	assert.False(t, s.IsDirty)
	assert.True(t, s.HasStaging)

	require.True(t, e.SaveToStaging(ctx))
	assert.Equal(t, first, f.stagingSnapshot())
	s = e.State()
	assert.False(t, s.IsDirty)
	assert.True(t, s.HasStaging)
	assert.Equal(t, "Suppliers saved to staging", s.Success)
	assert.Equal(t, 2, f.saves)
}

func TestEngine_SaveToStaging_FailureKeepsState(t *testing.T) {
	f := &fakeStores{saveErr: &workflow.StoreError{Status: 500, Reason: "disk full"}}
	e := newTestEngine(f)
	e.Add(acme())
	before := e.State()

	ok := e.SaveToStaging(context.Background())

	assert.False(t, ok)
	after := e.State()
	assert.Equal(t, before.Items, after.Items)
	assert.True(t, after.IsDirty)
	assert.False(t, after.HasStaging)
	assert.False(t, after.Loading)
	assert.Equal(t, "disk full", after.Error)
}

func TestEngine_SaveToStaging_GenericMessageWithStatus(t *testing.T) {
	f := &fakeStores{saveErr: &workflow.StoreError{Domain: "supplier", Op: "save", Location: "to staging", Status: 502}}
	e := newTestEngine(f)
	e.Add(acme())

	e.SaveToStaging(context.Background())

	assert.Equal(t, "Failed to save supplier to staging (status 502)", e.State().Error)
}

func TestEngine_SaveAndUpload_Serialized(t *testing.T) {
	f := &fakeStores{delay: 5 * time.Millisecond}
	e := newTestEngine(f)
	e.Add(acme())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				e.SaveToStaging(ctx)
			} else {
				e.UploadToProduction(ctx)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.maxInflight, "save and upload must never overlap")
}

func TestEngine_SaveToStaging_EditDuringSaveStaysDirty(t *testing.T) {
	// GIVEN: A save in flight
	f := gatedStores(acme())
	e := newTestEngine(f)
	ctx := context.Background()
	e.RefreshData(ctx)
	e.Edit("s1", workflow.Patch{"isActive": false})

	done := make(chan bool, 1)
	go func() { done <- e.SaveToStaging(ctx) }()
	<-f.entered

	// WHEN: The record is edited before the save returns
	e.Edit("s1", workflow.Patch{"name": "Acme Renamed"})
	close(f.gate)

	// THEN: The save succeeds but the newer edit is still unsaved
	assert.True(t, <-done)
	s := e.State()
	assert.True(t, s.HasStaging)
	assert.True(t, s.IsDirty)
	assert.Equal(t, []supplier{{ID: "s1", Name: "Acme", IsActive: false}}, f.stagingSnapshot())
}

func TestEngine_SaveAfterEditDoesNotJoinOlderSave(t *testing.T) {
	// GIVEN: A save in flight
	f := gatedStores(acme())
	e := newTestEngine(f)
	ctx := context.Background()
	e.RefreshData(ctx)
	e.Edit("s1", workflow.Patch{"isActive": false})

	first := make(chan bool, 1)
	go func() { first <- e.SaveToStaging(ctx) }()
	<-f.entered

	// WHEN: Editing and saving again while the first save runs
	e.Edit("s1", workflow.Patch{"name": "Acme Renamed"})
	second := make(chan bool, 1)
	go func() { second <- e.SaveToStaging(ctx) }()
	close(f.gate)

	// THEN: The second save writes the edit itself
	assert.True(t, <-first)
	assert.True(t, <-second)
	s := e.State()
	assert.False(t, s.IsDirty)
	assert.True(t, s.HasStaging)
	assert.Equal(t, []supplier{{ID: "s1", Name: "Acme Renamed", IsActive: false}}, f.stagingSnapshot())
	assert.Equal(t, 2, f.saves)
}

// =============================================================================
// DELETE
// =============================================================================

func TestEngine_Delete_Success(t *testing.T) {
	f := &fakeStores{staging: []supplier{acme(), bolts()}}
	e := newTestEngine(f)
	ctx := context.Background()
	e.RefreshData(ctx)

	e.Delete(ctx, "s1")

	s := e.State()
	assert.Equal(t, []supplier{bolts()}, s.Items)
	assert.True(t, s.IsDirty)
	assert.Empty(t, s.Error)
	assert.Equal(t, "Supplier deleted from staging", s.Success)
	assert.Equal(t, []string{"s1"}, f.deletes)
}

func TestEngine_Delete_RollbackOnFailure(t *testing.T) {
	// GIVEN: a clean working set and a store that fails with 500
	f := &fakeStores{production: []supplier{acme(), bolts()}}
	e := newTestEngine(f)
	ctx := context.Background()
	e.RefreshData(ctx)
	require.False(t, e.State().IsDirty)
	f.deleteErr = &workflow.StoreError{Domain: "supplier", Op: "delete", Location: "from staging", Status: 500}

	// WHEN: deleting
	e.Delete(ctx, "s1")

	// THEN: the record is back in place and the optimistic dirty flag is undone
	s := e.State()
	assert.Equal(t, []supplier{acme(), bolts()}, s.Items)
	assert.False(t, s.IsDirty)
	assert.Equal(t, "Failed to delete supplier from staging (status 500)", s.Error)
}

func TestEngine_Delete_RollbackPrefersStoreReason(t *testing.T) {
	f := &fakeStores{production: []supplier{acme()}}
	e := newTestEngine(f)
	ctx := context.Background()
	e.RefreshData(ctx)
	e.Edit("s1", workflow.Patch{"name": "Acme Corp"})
	f.deleteErr = &workflow.StoreError{Status: 409, Reason: "supplier is referenced by products"}

	e.Delete(ctx, "s1")

	s := e.State()
	require.Len(t, s.Items, 1)
	assert.Equal(t, "Acme Corp", s.Items[0].Name)
	assert.True(t, s.IsDirty, "dirty flag before the delete is restored")
	assert.Equal(t, "supplier is referenced by products", s.Error)
}

func TestEngine_Delete_NotFoundIsLenient(t *testing.T) {
	// GIVEN: the record exists locally but not in staging
	f := &fakeStores{production: []supplier{acme()}}
	e := newTestEngine(f)
	ctx := context.Background()
	e.RefreshData(ctx)

	e.Delete(ctx, "s1")

	s := e.State()
	assert.Empty(t, s.Items)
	assert.Empty(t, s.Error)
	assert.Equal(t, "Supplier was already removed from staging", s.Success)
}

func TestEngine_Delete_UnknownIDRefreshes(t *testing.T) {
	f := &fakeStores{production: []supplier{acme()}}
	e := newTestEngine(f)

	e.Delete(context.Background(), "s1")

	s := e.State()
	assert.Equal(t, []supplier{acme()}, s.Items, "refresh loaded production")
	assert.Empty(t, f.deletes, "no store delete for unknown id")
	assert.Empty(t, s.Error)
}

// =============================================================================
// UPLOAD
// =============================================================================

func TestEngine_Upload_ClearsState(t *testing.T) {
	f := &fakeStores{}
	e := newTestEngine(f)
	ctx := context.Background()
	e.Add(acme())
	require.True(t, e.SaveToStaging(ctx))

	ok := e.UploadToProduction(ctx)

	assert.True(t, ok)
	s := e.State()
	assert.Empty(t, s.Items)
	assert.False(t, s.HasStaging)
	assert.False(t, s.IsDirty)
	assert.Equal(t, "Suppliers uploaded to production", s.Success)
	assert.Equal(t, []supplier{acme()}, f.production)
}

func TestEngine_Upload_FailureKeepsState(t *testing.T) {
	f := &fakeStores{promoteErr: &workflow.StoreError{Status: 400, Reason: "no staging data to promote"}}
	e := newTestEngine(f)
	e.Add(acme())
	before := e.State()

	ok := e.UploadToProduction(context.Background())

	assert.False(t, ok)
	after := e.State()
	assert.Equal(t, before.Items, after.Items)
	assert.Equal(t, before.IsDirty, after.IsDirty)
	assert.Equal(t, before.HasStaging, after.HasStaging)
	assert.Equal(t, "no staging data to promote", after.Error)
}

func TestEngine_Upload_WithoutStagingDelegatesToStore(t *testing.T) {
	f := &fakeStores{}
	e := newTestEngine(f)

	e.UploadToProduction(context.Background())

	assert.Equal(t, 1, f.promotes)
}

// =============================================================================
// REFRESH
// =============================================================================

func TestEngine_Refresh_StaleStaging(t *testing.T) {
	f := &fakeStores{
		staging:    []supplier{bolts(), acme()},
		production: []supplier{acme(), bolts()},
	}
	e := newTestEngine(f)

	e.RefreshData(context.Background())

	s := e.State()
	assert.Equal(t, []supplier{acme(), bolts()}, s.Items)
	assert.False(t, s.HasStaging)
	assert.False(t, s.IsDirty)
	assert.False(t, s.Loading)
	assert.False(t, e.LastDiff().Pending())
}

func TestEngine_Refresh_DivergentStaging(t *testing.T) {
	changed := acme()
	changed.IsActive = false
	f := &fakeStores{
		staging:    []supplier{changed},
		production: []supplier{acme()},
	}
	e := newTestEngine(f)

	e.RefreshData(context.Background())

	s := e.State()
	assert.Equal(t, []supplier{changed}, s.Items)
	assert.True(t, s.HasStaging)
	assert.True(t, s.IsDirty)
	assert.Equal(t, []string{"s1"}, e.LastDiff().Changed)
}

func TestEngine_Refresh_NewInStaging(t *testing.T) {
	f := &fakeStores{
		staging:    []supplier{acme(), {ID: "temp-1", Name: "New"}},
		production: []supplier{acme()},
	}
	e := newTestEngine(f)

	e.RefreshData(context.Background())

	d := e.LastDiff()
	assert.True(t, d.HasDifferentContent)
	assert.True(t, d.HasDifferentIDs)
	assert.True(t, e.State().HasStaging)
}

func TestEngine_Refresh_StagingReadFailureFallsBackToProduction(t *testing.T) {
	f := &fakeStores{
		staging:        []supplier{bolts()},
		production:     []supplier{acme()},
		loadStagingErr: errors.New("staging offline"),
	}
	e := newTestEngine(f)

	e.RefreshData(context.Background())

	s := e.State()
	assert.Equal(t, []supplier{acme()}, s.Items)
	assert.False(t, s.HasStaging)
	assert.Empty(t, s.Error)
}

func TestEngine_Refresh_ProductionFailureKeepsItems(t *testing.T) {
	f := &fakeStores{production: []supplier{acme()}}
	e := newTestEngine(f)
	ctx := context.Background()
	e.RefreshData(ctx)
	f.loadProductionErr = &workflow.StoreError{Domain: "supplier", Op: "load", Location: "from production", Status: 503}

	e.RefreshData(ctx)

	s := e.State()
	assert.Equal(t, []supplier{acme()}, s.Items)
	assert.False(t, s.Loading)
	assert.Equal(t, "Failed to load supplier from production (status 503)", s.Error)
}

func TestEngine_Refresh_FirstLoadFailureLeavesEmpty(t *testing.T) {
	f := &fakeStores{loadProductionErr: errors.New("connection refused")}
	e := newTestEngine(f)

	e.RefreshData(context.Background())

	s := e.State()
	assert.Empty(t, s.Items)
	assert.Equal(t, "Failed to load supplier from production", s.Error)
}

// =============================================================================
// OBSERVATION
// =============================================================================

func TestEngine_Subscribe(t *testing.T) {
	e := newTestEngine(&fakeStores{})
	var seen []workflow.State[supplier]
	unsubscribe := e.Subscribe(func(s workflow.State[supplier]) {
		seen = append(seen, s)
	})

	e.Add(acme())
	unsubscribe()
	e.Add(bolts())

	require.Len(t, seen, 1)
	assert.Equal(t, []supplier{acme()}, seen[0].Items)
}

func TestEngine_SuccessAutoClears(t *testing.T) {
	e := workflow.NewEngine[supplier](&fakeStores{}, &fakeStores{}, workflow.Options[supplier]{
		Type:       "supplier",
		SuccessTTL: 20 * time.Millisecond,
	})
	defer e.Close()

	e.Add(acme())
	assert.Equal(t, "Supplier added", e.State().Success)

	assert.Eventually(t, func() bool {
		return e.State().Success == ""
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_DismissError(t *testing.T) {
	e := newTestEngine(&fakeStores{})
	e.Add(supplier{})
	require.NotEmpty(t, e.State().Error)

	e.DismissError()

	assert.Empty(t, e.State().Error)
}

// =============================================================================
// END TO END
// =============================================================================

func TestEngine_EndToEndSupplierScenario(t *testing.T) {
	// GIVEN: empty staging, production holds one active supplier
	f := &fakeStores{production: []supplier{acme()}}
	e := newTestEngine(f)
	ctx := context.Background()

	// WHEN: the page loads
	e.RefreshData(ctx)
	s := e.State()
	assert.Equal(t, []supplier{acme()}, s.Items)
	assert.False(t, s.HasStaging)

	// WHEN: the supplier is deactivated
	e.Edit("s1", workflow.Patch{"isActive": false})
	assert.True(t, e.State().IsDirty)

	// WHEN: saved to staging
	require.True(t, e.SaveToStaging(ctx))
	s = e.State()
	assert.True(t, s.HasStaging)
	assert.False(t, s.IsDirty)

	// WHEN: uploaded
	require.True(t, e.UploadToProduction(ctx))
	s = e.State()
	assert.Empty(t, s.Items)
	assert.False(t, s.HasStaging)

	// THEN: refresh shows the new production state
	e.RefreshData(ctx)
	s = e.State()
	assert.Equal(t, []supplier{{ID: "s1", Name: "Acme", IsActive: false}}, s.Items)
	assert.False(t, s.HasStaging)
	assert.False(t, s.IsDirty)
}
