// Package memory provides an in-memory store.Store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/staging-engine/store"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	docs       map[key][]store.Document
	promotions []store.Promotion
	purges     []store.PurgeRun
	now        func() time.Time
}

type key struct {
	Area   store.Area
	Domain string
}

var _ store.Store = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		docs: make(map[key][]store.Document),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) List(_ context.Context, area store.Area, domain string) ([]store.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := key{Area: area, Domain: domain}
	result := make([]store.Document, len(m.docs[k]))
	copy(result, m.docs[k])
	return result, nil
}

// Replace swaps the whole area. Duplicate ids leave it untouched.
func (m *Memory) Replace(_ context.Context, area store.Area, domain string, docs []store.Document) error {
	if err := store.CheckUnique(docs); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key{Area: area, Domain: domain}] = cloneDocs(docs)
	return nil
}

func (m *Memory) Delete(_ context.Context, area store.Area, domain, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{Area: area, Domain: domain}
	docs := m.docs[k]
	for i, d := range docs {
		if d.ID == id {
			m.docs[k] = append(docs[:i:i], docs[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

// PurgeIfUnchanged compares and clears under one lock.
func (m *Memory) PurgeIfUnchanged(_ context.Context, area store.Area, domain string, seen []store.Document) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{Area: area, Domain: domain}
	if !store.SameDocuments(m.docs[k], seen) {
		return 0, store.ErrChanged
	}
	n := len(m.docs[k])
	delete(m.docs, k)
	return n, nil
}

// Promote is atomic because the whole swap happens under one lock.
func (m *Memory) Promote(_ context.Context, domain string) (store.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stagingKey := key{Area: store.Staging, Domain: domain}
	staged := m.docs[stagingKey]
	if len(staged) == 0 {
		return store.Promotion{}, store.ErrNothingToPromote
	}

	m.docs[key{Area: store.Production, Domain: domain}] = cloneDocs(staged)
	delete(m.docs, stagingKey)

	p := store.Promotion{
		ID:          uuid.NewString(),
		Domain:      domain,
		RecordCount: len(staged),
		PromotedAt:  m.now(),
	}
	m.promotions = append(m.promotions, p)
	return p, nil
}

func (m *Memory) Promotions(_ context.Context, domain string, limit int) ([]store.Promotion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []store.Promotion{}
	for i := len(m.promotions) - 1; i >= 0; i-- {
		p := m.promotions[i]
		if domain != "" && p.Domain != domain {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) RecordPurge(_ context.Context, run store.PurgeRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.PurgedAt.IsZero() {
		run.PurgedAt = m.now()
	}
	m.purges = append(m.purges, run)
	return nil
}

func (m *Memory) PurgeRuns(_ context.Context, domain string, limit int) ([]store.PurgeRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []store.PurgeRun{}
	for _, r := range m.purges {
		if domain == "" || r.Domain == domain {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PurgedAt.After(out[j].PurgedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs = make(map[key][]store.Document)
	m.promotions = nil
	m.purges = nil
	return nil
}

func cloneDocs(docs []store.Document) []store.Document {
	out := make([]store.Document, len(docs))
	for i, d := range docs {
		out[i] = store.Document{ID: d.ID, Data: append([]byte(nil), d.Data...)}
	}
	return out
}
