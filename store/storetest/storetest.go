// Package storetest runs the same behavioural checks against every
// store.Store implementation.
package storetest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/staging-engine/store"
)

// Doc builds a document whose data is {"id": id, "name": name}.
func Doc(id, name string) store.Document {
	data, _ := json.Marshal(map[string]string{"id": id, "name": name})
	return store.Document{ID: id, Data: data}
}

// Run exercises s. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("ListEmpty", func(t *testing.T) {
		s := newStore(t)
		docs, err := s.List(ctx, store.Staging, "suppliers")
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("ReplaceKeepsOrder", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Replace(ctx, store.Staging, "suppliers", []store.Document{
			Doc("s2", "Bolts"), Doc("s1", "Acme"),
		}))

		docs, err := s.List(ctx, store.Staging, "suppliers")
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "s2", docs[0].ID)
		assert.Equal(t, "s1", docs[1].ID)
		assert.JSONEq(t, `{"id":"s2","name":"Bolts"}`, string(docs[0].Data))
	})

	t.Run("ReplaceIsReplaceAll", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Replace(ctx, store.Staging, "suppliers", []store.Document{Doc("s1", "Acme"), Doc("s2", "Bolts")}))
		require.NoError(t, s.Replace(ctx, store.Staging, "suppliers", []store.Document{Doc("s3", "Cogs")}))

		docs, err := s.List(ctx, store.Staging, "suppliers")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "s3", docs[0].ID)
	})

	t.Run("ReplaceRejectsDuplicates", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Replace(ctx, store.Staging, "suppliers", []store.Document{Doc("s1", "Acme")}))

		err := s.Replace(ctx, store.Staging, "suppliers", []store.Document{Doc("s2", "A"), Doc("s2", "B")})
		assert.ErrorIs(t, err, store.ErrDuplicateID)

		docs, _ := s.List(ctx, store.Staging, "suppliers")
		require.Len(t, docs, 1, "failed replace leaves area untouched")
		assert.Equal(t, "s1", docs[0].ID)
	})

	t.Run("AreasAndDomainsAreIsolated", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Replace(ctx, store.Staging, "suppliers", []store.Document{Doc("s1", "Acme")}))
		require.NoError(t, s.Replace(ctx, store.Production, "suppliers", []store.Document{Doc("p1", "Prod")}))
		require.NoError(t, s.Replace(ctx, store.Staging, "taxes", []store.Document{Doc("t1", "VAT")}))

		docs, _ := s.List(ctx, store.Production, "suppliers")
		require.Len(t, docs, 1)
		assert.Equal(t, "p1", docs[0].ID)
		docs, _ = s.List(ctx, store.Staging, "taxes")
		require.Len(t, docs, 1)
		assert.Equal(t, "t1", docs[0].ID)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Replace(ctx, store.Staging, "suppliers", []store.Document{Doc("s1", "Acme"), Doc("s2", "Bolts")}))

		require.NoError(t, s.Delete(ctx, store.Staging, "suppliers", "s1"))
		assert.ErrorIs(t, s.Delete(ctx, store.Staging, "suppliers", "s1"), store.ErrNotFound)

		docs, _ := s.List(ctx, store.Staging, "suppliers")
		require.Len(t, docs, 1)
		assert.Equal(t, "s2", docs[0].ID)
	})

	t.Run("PromoteMovesStagingToProduction", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Replace(ctx, store.Production, "suppliers", []store.Document{Doc("old", "Old")}))
		require.NoError(t, s.Replace(ctx, store.Staging, "suppliers", []store.Document{Doc("s1", "Acme"), Doc("s2", "Bolts")}))

		p, err := s.Promote(ctx, "suppliers")
		require.NoError(t, err)
		assert.Equal(t, "suppliers", p.Domain)
		assert.Equal(t, 2, p.RecordCount)
		assert.NotEmpty(t, p.ID)

		prod, _ := s.List(ctx, store.Production, "suppliers")
		require.Len(t, prod, 2)
		assert.Equal(t, "s1", prod[0].ID)
		assert.Equal(t, "s2", prod[1].ID)

		staged, _ := s.List(ctx, store.Staging, "suppliers")
		assert.Empty(t, staged)

		runs, err := s.Promotions(ctx, "suppliers", 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, p.ID, runs[0].ID)
	})

	t.Run("PromoteEmptyStaging", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Replace(ctx, store.Production, "suppliers", []store.Document{Doc("p1", "Prod")}))

		_, err := s.Promote(ctx, "suppliers")
		assert.ErrorIs(t, err, store.ErrNothingToPromote)

		prod, _ := s.List(ctx, store.Production, "suppliers")
		assert.Len(t, prod, 1, "production untouched")
	})

	t.Run("PromotionsNewestFirst", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, s.Replace(ctx, store.Staging, "taxes", []store.Document{Doc(id, id)}))
			_, err := s.Promote(ctx, "taxes")
			require.NoError(t, err)
		}

		runs, err := s.Promotions(ctx, "taxes", 2)
		require.NoError(t, err)
		assert.Len(t, runs, 2)

		all, err := s.Promotions(ctx, "", 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("PurgeAndAudit", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Replace(ctx, store.Staging, "settings", []store.Document{Doc("h1", "Logo"), Doc("h2", "Title")}))

		seen, err := s.List(ctx, store.Staging, "settings")
		require.NoError(t, err)

		n, err := s.PurgeIfUnchanged(ctx, store.Staging, "settings", seen)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		docs, _ := s.List(ctx, store.Staging, "settings")
		assert.Empty(t, docs)

		require.NoError(t, s.RecordPurge(ctx, store.PurgeRun{Domain: "settings", RecordCount: n}))
		runs, err := s.PurgeRuns(ctx, "settings", 0)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, 2, runs[0].RecordCount)
		assert.NotEmpty(t, runs[0].ID)
		assert.False(t, runs[0].PurgedAt.IsZero())
	})

	t.Run("PurgeIfUnchangedKeepsNewerWrite", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Replace(ctx, store.Staging, "suppliers", []store.Document{Doc("s1", "Acme")}))
		seen, err := s.List(ctx, store.Staging, "suppliers")
		require.NoError(t, err)

		require.NoError(t, s.Replace(ctx, store.Staging, "suppliers", []store.Document{Doc("s1", "Acme Renamed")}))
		n, err := s.PurgeIfUnchanged(ctx, store.Staging, "suppliers", seen)

		assert.ErrorIs(t, err, store.ErrChanged)
		assert.Zero(t, n)
		docs, _ := s.List(ctx, store.Staging, "suppliers")
		require.Len(t, docs, 1)
		assert.JSONEq(t, `{"id":"s1","name":"Acme Renamed"}`, string(docs[0].Data))
	})

	t.Run("PurgeIfUnchangedDetectsReorder", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Replace(ctx, store.Staging, "suppliers", []store.Document{Doc("s1", "Acme"), Doc("s2", "Bolts")}))

		_, err := s.PurgeIfUnchanged(ctx, store.Staging, "suppliers", []store.Document{Doc("s2", "Bolts"), Doc("s1", "Acme")})

		assert.ErrorIs(t, err, store.ErrChanged)
	})

	t.Run("Reset", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Replace(ctx, store.Staging, "suppliers", []store.Document{Doc("s1", "Acme")}))
		_, err := s.Promote(ctx, "suppliers")
		require.NoError(t, err)

		require.NoError(t, s.Reset(ctx))

		docs, _ := s.List(ctx, store.Production, "suppliers")
		assert.Empty(t, docs)
		runs, _ := s.Promotions(ctx, "", 0)
		assert.Empty(t, runs)
	})
}
