package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staging-engine/api"
	"github.com/warp/staging-engine/catalog"
	"github.com/warp/staging-engine/config"
	"github.com/warp/staging-engine/store"
	"github.com/warp/staging-engine/store/memory"
	"github.com/warp/staging-engine/workflow"
)

// startServer runs a server loaded with scenario and returns its API root.
func startServer(t *testing.T, scenario string) (string, store.Store) {
	t.Helper()
	t.Setenv(config.EnvPath, "")
	t.Setenv("STAGE_BASE_URL", "")

	st := memory.New()
	h := api.NewHandler(st, nil)
	if scenario != "" {
		require.NoError(t, h.Load(context.Background(), scenario))
	}
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv.URL + "/api", st
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func stagedJSON(t *testing.T, st store.Store, domain string) []map[string]any {
	t.Helper()
	docs, err := st.List(context.Background(), store.Staging, domain)
	require.NoError(t, err)
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		require.NoError(t, json.Unmarshal(d.Data, &out[i]))
	}
	return out
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"domains", "status", "add", "edit", "delete", "promote"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	t.Setenv(config.EnvPath, "")

	_, err := execute(t, "domains", "--format", "xml")

	assert.ErrorContains(t, err, `invalid format "xml"`)
}

func TestDomains(t *testing.T) {
	t.Setenv(config.EnvPath, "")

	out, err := execute(t, "domains")

	require.NoError(t, err)
	assert.Contains(t, out, "settings")
	assert.Contains(t, out, "delete=query")
}

func TestStatus_Pending(t *testing.T) {
	base, _ := startServer(t, "pending-changes")

	out, err := execute(t, "status", "suppliers", "--base-url", base, "--format", "json")

	require.NoError(t, err)
	var report StatusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Pending)
	assert.Equal(t, 3, report.Items)
	assert.Equal(t, []string{"sup-acme"}, report.Changed)
	assert.Equal(t, []string{"sup-inkwell"}, report.Added)
}

func TestStatus_StaleStagingMatchesProduction(t *testing.T) {
	base, _ := startServer(t, "stale-staging")

	out, err := execute(t, "status", "settings", "--base-url", base)

	require.NoError(t, err)
	assert.Equal(t, "settings: 3 items, staging matches production\n", out)
}

func TestEdit_SavesCollection(t *testing.T) {
	// GIVEN: Production suppliers and no staging
	base, st := startServer(t, "shop-launch")

	// WHEN: Deactivating one supplier
	out, err := execute(t, "edit", "suppliers", "sup-acme", "isActive=false", "phone=+49 30 1234", "--base-url", base)

	// THEN: Staging holds the full collection with the patch applied
	require.NoError(t, err)
	assert.Equal(t, "Suppliers saved to staging\n", out)

	staged := stagedJSON(t, st, "suppliers")
	require.Len(t, staged, 2)
	assert.Equal(t, "sup-acme", staged[0]["id"])
	assert.Equal(t, false, staged[0]["isActive"])
	assert.Equal(t, "+49 30 1234", staged[0]["phone"])
}

func TestEdit_UnknownID(t *testing.T) {
	base, _ := startServer(t, "shop-launch")

	_, err := execute(t, "edit", "suppliers", "ghost", "name=x", "--base-url", base)

	assert.ErrorContains(t, err, `no supplier with id "ghost"`)
}

func TestEdit_ServerRejects(t *testing.T) {
	base, _ := startServer(t, "shop-launch")

	_, err := execute(t, "edit", "suppliers", "sup-acme", "name=", "--base-url", base)

	assert.ErrorContains(t, err, "name is required")
}

func TestAdd(t *testing.T) {
	base, st := startServer(t, "shop-launch")

	_, err := execute(t, "add", "taxes", `{"id":"tax-at","name":"Austria standard","country":"AT","rate":"20"}`, "--base-url", base)

	require.NoError(t, err)
	staged := stagedJSON(t, st, "taxes")
	require.Len(t, staged, 3)
	assert.Equal(t, "tax-at", staged[2]["id"])
}

func TestAdd_WithoutIDGetsTempID(t *testing.T) {
	base, st := startServer(t, "shop-launch")

	_, err := execute(t, "add", "taxes", `{"name":"Austria standard","country":"AT","rate":"20"}`, "--base-url", base)

	require.NoError(t, err)
	staged := stagedJSON(t, st, "taxes")
	require.Len(t, staged, 3)
	id, _ := staged[2]["id"].(string)
	assert.True(t, workflow.IsTempID(id), "got id %q", id)
}

func TestAdd_DuplicateID(t *testing.T) {
	base, _ := startServer(t, "shop-launch")

	_, err := execute(t, "add", "suppliers", `{"id":"sup-acme","name":"Again"}`, "--base-url", base)

	assert.ErrorContains(t, err, "already exists")
}

func TestDelete_QueryStyle(t *testing.T) {
	base, st := startServer(t, "stale-staging")
	// make staging diverge so it is presented
	_, err := execute(t, "edit", "settings", "hero-title", "value=Winter Sale", "--base-url", base)
	require.NoError(t, err)

	out, err := execute(t, "delete", "settings", "hdr-tagline", "--base-url", base)

	require.NoError(t, err)
	assert.Equal(t, "Setting deleted from staging\n", out)
	assert.Len(t, stagedJSON(t, st, "settings"), 2)
}

func TestDelete_FromProductionIsSaved(t *testing.T) {
	// GIVEN: No staging, so the supplier is shown from production
	base, st := startServer(t, "shop-launch")

	// WHEN: Deleting it
	out, err := execute(t, "delete", "suppliers", "sup-acme", "--base-url", base)

	// THEN: Staging holds the collection without it, production is untouched
	require.NoError(t, err)
	assert.Equal(t, "Suppliers saved to staging\n", out)
	staged := stagedJSON(t, st, "suppliers")
	require.Len(t, staged, 1)
	assert.Equal(t, "sup-nordic", staged[0]["id"])
	prod, err := st.List(context.Background(), store.Production, "suppliers")
	require.NoError(t, err)
	assert.Len(t, prod, 2)

	out, err = execute(t, "status", "suppliers", "--base-url", base, "--format", "json")
	require.NoError(t, err)
	var report StatusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Pending)
	assert.Equal(t, []string{"sup-acme"}, report.Removed)
}

func TestPromote(t *testing.T) {
	base, st := startServer(t, "donation-drive")

	out, err := execute(t, "promote", "donations", "--base-url", base, "--format", "json")

	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"message":"Donations uploaded to production"}`, out)
	prod, err := st.List(context.Background(), store.Production, "donations")
	require.NoError(t, err)
	assert.Len(t, prod, 2)
}

func TestPromote_NothingStaged(t *testing.T) {
	base, _ := startServer(t, "shop-launch")

	_, err := execute(t, "promote", "suppliers", "--base-url", base)

	assert.EqualError(t, err, "No staging data to promote")
}

func TestParsePatch(t *testing.T) {
	patch, err := parsePatch([]string{"stock=12", "isActive=true", "name=Gel Pen", `sku="007"`, "parentId=null"})

	require.NoError(t, err)
	assert.Equal(t, float64(12), patch["stock"])
	assert.Equal(t, true, patch["isActive"])
	assert.Equal(t, "Gel Pen", patch["name"])
	assert.Equal(t, "007", patch["sku"])
	assert.Nil(t, patch["parentId"])

	_, err = parsePatch([]string{"novalue"})
	assert.Error(t, err)
}

func TestOpenSession_UsesConfiguredSuccessTTL(t *testing.T) {
	t.Setenv(config.EnvPath, "")
	t.Setenv("STAGE_BASE_URL", "")
	path := filepath.Join(t.TempDir(), "stage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client:\n  success_ttl: 20ms\n"), 0o644))

	s, err := openSession(&RootOptions{ConfigPath: path}, "suppliers", io.Discard)
	require.NoError(t, err)
	defer s.Close()

	s.engine.Add(catalog.Entry{"id": "sup-x", "name": "X"})
	assert.Equal(t, "Supplier added", s.engine.State().Success)
	assert.Eventually(t, func() bool {
		return s.engine.State().Success == ""
	}, time.Second, 5*time.Millisecond)
}
