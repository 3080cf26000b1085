package workflow_test

import (
	"context"
	"sync"
	"time"

	"github.com/warp/staging-engine/workflow"
)

// =============================================================================
// TEST RECORD
// =============================================================================

type supplier struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"isActive"`
}

func (s supplier) RecordID() string { return s.ID }

func acme() supplier  { return supplier{ID: "s1", Name: "Acme", IsActive: true} }
func bolts() supplier { return supplier{ID: "s2", Name: "Bolts Ltd", IsActive: true} }

// =============================================================================
// FAKE STORES
// =============================================================================

// fakeStores backs both staging and production in memory. Promote copies
// staging to production and clears staging, like the real server.
type fakeStores struct {
	mu         sync.Mutex
	staging    []supplier
	production []supplier

	loadStagingErr    error
	loadProductionErr error
	saveErr           error
	deleteErr         error
	promoteErr        error

	saves    int
	deletes  []string
	promotes int

	delay       time.Duration
	inflight    int
	maxInflight int

	// gate, when set, holds SaveStaging until closed. Each held call is
	// announced on entered first.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeStores) enter() {
	f.mu.Lock()
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	delay := f.delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
}

func (f *fakeStores) leave() {
	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()
}

func (f *fakeStores) LoadStaging(context.Context) ([]supplier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadStagingErr != nil {
		return nil, f.loadStagingErr
	}
	return append([]supplier(nil), f.staging...), nil
}

func (f *fakeStores) SaveStaging(_ context.Context, items []supplier) error {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	f.enter()
	defer f.leave()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.staging = append([]supplier(nil), items...)
	return nil
}

func (f *fakeStores) DeleteStaging(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, s := range f.staging {
		if s.ID == id {
			f.staging = append(f.staging[:i], f.staging[i+1:]...)
			return nil
		}
	}
	return &workflow.StoreError{Domain: "supplier", Op: "delete", Location: "from staging", Status: 404}
}

func (f *fakeStores) LoadProduction(context.Context) ([]supplier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadProductionErr != nil {
		return nil, f.loadProductionErr
	}
	return append([]supplier(nil), f.production...), nil
}

func (f *fakeStores) Promote(context.Context) error {
	f.enter()
	defer f.leave()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promotes++
	if f.promoteErr != nil {
		return f.promoteErr
	}
	f.production = append([]supplier(nil), f.staging...)
	f.staging = nil
	return nil
}

func (f *fakeStores) stagingSnapshot() []supplier {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]supplier(nil), f.staging...)
}

func newTestEngine(f *fakeStores) *workflow.Engine[supplier] {
	return workflow.NewEngine[supplier](f, f, workflow.Options[supplier]{
		Type:       "supplier",
		SuccessTTL: -1,
	})
}

// gatedStores returns stores whose saves wait for close(f.gate).
func gatedStores(production ...supplier) *fakeStores {
	return &fakeStores{
		production: production,
		gate:       make(chan struct{}),
		entered:    make(chan struct{}, 4),
	}
}
