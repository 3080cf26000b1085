package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/staging-engine/store"
	"github.com/warp/staging-engine/store/memory"
	"github.com/warp/staging-engine/store/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return memory.New()
	})
}

func TestMemory_ListReturnsCopy(t *testing.T) {
	m := memory.New()
	ctx := context.Background()
	require.NoError(t, m.Replace(ctx, store.Staging, "suppliers", []store.Document{storetest.Doc("s1", "Acme")}))

	docs, _ := m.List(ctx, store.Staging, "suppliers")
	docs[0].ID = "mutated"

	again, _ := m.List(ctx, store.Staging, "suppliers")
	assert.Equal(t, "s1", again[0].ID)
}
