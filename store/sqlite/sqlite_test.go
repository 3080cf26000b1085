package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/staging-engine/store"
	"github.com/warp/staging-engine/store/sqlite"
	"github.com/warp/staging-engine/store/storetest"
)

func newTestStore(t *testing.T) *sqlite.Store {
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestStore(t)
	})
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	// GIVEN: a file database with a promoted collection
	path := filepath.Join(t.TempDir(), "staging.db")
	ctx := context.Background()

	st, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, st.Replace(ctx, store.Staging, "suppliers", []store.Document{storetest.Doc("s1", "Acme")}))
	_, err = st.Promote(ctx, "suppliers")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	// WHEN: reopening
	st, err = sqlite.New(path)
	require.NoError(t, err)
	defer st.Close()

	// THEN: production and the audit row survived
	docs, err := st.List(ctx, store.Production, "suppliers")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.JSONEq(t, `{"id":"s1","name":"Acme"}`, string(docs[0].Data))

	runs, err := st.Promotions(ctx, "suppliers", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLite_PurgeRunsOrderWithinOneSecond(t *testing.T) {
	// GIVEN: two runs in the same second, the later one recorded first
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	require.NoError(t, st.RecordPurge(ctx, store.PurgeRun{ID: "later", Domain: "taxes", PurgedAt: base.Add(500 * time.Millisecond)}))
	require.NoError(t, st.RecordPurge(ctx, store.PurgeRun{ID: "earlier", Domain: "taxes", PurgedAt: base}))

	// WHEN: listing
	runs, err := st.PurgeRuns(ctx, "taxes", 0)

	// THEN: newest first, with times intact
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "later", runs[0].ID)
	assert.Equal(t, "earlier", runs[1].ID)
	assert.True(t, runs[1].PurgedAt.Equal(base))
}
