/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	catalog data for demos. Each scenario writes production snapshots and,
	for most, a staging snapshot that shows a pending change.

AVAILABLE SCENARIOS:

	shop-launch:     Production shop data, nothing staged
	pending-changes: Supplier and product edits waiting in staging
	stale-staging:   Page settings staged but identical to production
	donation-drive:  Updated and new donation campaigns in staging

HOW SCENARIOS WORK:
 1. Reset store (clear all areas and audit logs)
 2. Write production snapshots
 3. Write staging snapshots
 4. Remember the loaded scenario

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "pending-changes"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description and loader

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Collection handlers
  - catalog/types.go: Record definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/staging-engine/catalog"
	"github.com/warp/staging-engine/store"
	"github.com/warp/staging-engine/workflow"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, st store.Store) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "shop-launch",
			Name:        "Shop Launch",
			Description: "Suppliers, categories, taxes and products live in production",
		},
		load: loadShopLaunch,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "pending-changes",
			Name:        "Pending Changes",
			Description: "A renamed supplier, a new supplier and a price change wait in staging",
		},
		load: loadPendingChanges,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "stale-staging",
			Name:        "Stale Staging",
			Description: "Header and hero settings staged but identical to production",
		},
		load: loadStaleStaging,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "donation-drive",
			Name:        "Donation Drive",
			Description: "Raised amounts updated and a new campaign staged",
		},
		load: loadDonationDrive,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	s, _ := findScenario(current)
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if _, ok := findScenario(req.ScenarioID); !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err := h.Load(r.Context(), req.ScenarioID); err != nil {
		h.fail(w, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears every area and audit log.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		h.fail(w, "Failed to reset store", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Load resets the store and loads the scenario with the given id.
func (h *Handler) Load(ctx context.Context, id string) error {
	s, ok := findScenario(id)
	if !ok {
		return fmt.Errorf("unknown scenario %q", id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	h.currentScenario = ""

	if err := s.load(ctx, h.Store); err != nil {
		return err
	}
	h.currentScenario = id
	h.Logger.Info("scenario loaded", zap.String("scenario", id))
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// seed validates items against their domain and replaces one area with them.
func seed[T workflow.Record](ctx context.Context, st store.Store, area store.Area, domain string, items ...T) error {
	d, err := catalog.Lookup(domain)
	if err != nil {
		return err
	}

	raws := make([]json.RawMessage, len(items))
	for i, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", d.Type, item.RecordID(), err)
		}
		raws[i] = data
	}

	ids, err := d.Check(raws)
	if err != nil {
		return err
	}

	docs := make([]store.Document, len(raws))
	for i := range raws {
		docs[i] = store.Document{ID: ids[i], Data: raws[i]}
	}
	if err := st.Replace(ctx, area, domain, docs); err != nil {
		return fmt.Errorf("seed %s %s: %w", area, domain, err)
	}
	return nil
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var (
	supplierAcme   = catalog.Supplier{ID: "sup-acme", Name: "Acme Wholesale", ContactName: "Dana Reyes", Email: "orders@acme.example", IsActive: true}
	supplierNordic = catalog.Supplier{ID: "sup-nordic", Name: "Nordic Paper Co", Email: "hello@nordicpaper.example", IsActive: true}

	categoryStationery = catalog.Category{ID: "cat-stationery", Name: "Stationery", Slug: "stationery", SortOrder: 1, IsActive: true}
	categoryNotebooks  = catalog.Category{ID: "cat-notebooks", Name: "Notebooks", Slug: "notebooks", ParentID: "cat-stationery", SortOrder: 2, IsActive: true}

	taxStandard = catalog.TaxRule{ID: "tax-de-std", Name: "Germany standard", Country: "DE", Rate: money("19"), IsDefault: true}
	taxReduced  = catalog.TaxRule{ID: "tax-de-red", Name: "Germany reduced", Country: "DE", Rate: money("7")}

	productNotebook = catalog.Product{ID: "prd-a5-notebook", Name: "A5 Dotted Notebook", SKU: "NB-A5-DOT", CategoryID: "cat-notebooks", SupplierID: "sup-nordic", TaxRuleID: "tax-de-std", Price: money("12.90"), Stock: 140, IsActive: true}
	productPen      = catalog.Product{ID: "prd-gel-pen", Name: "Gel Pen Black", SKU: "PEN-GEL-BLK", CategoryID: "cat-stationery", SupplierID: "sup-acme", TaxRuleID: "tax-de-std", Price: money("2.50"), Stock: 900, IsActive: true}
	productPlanner  = catalog.Product{ID: "prd-planner", Name: "Weekly Planner", SKU: "PLN-WK-26", CategoryID: "cat-notebooks", SupplierID: "sup-nordic", TaxRuleID: "tax-de-std", Price: money("18.00"), Stock: 35, IsActive: true}
)

func loadShopLaunch(ctx context.Context, st store.Store) error {
	if err := seed(ctx, st, store.Production, "suppliers", supplierAcme, supplierNordic); err != nil {
		return err
	}
	if err := seed(ctx, st, store.Production, "categories", categoryStationery, categoryNotebooks); err != nil {
		return err
	}
	if err := seed(ctx, st, store.Production, "taxes", taxStandard, taxReduced); err != nil {
		return err
	}
	return seed(ctx, st, store.Production, "products", productNotebook, productPen, productPlanner)
}

func loadPendingChanges(ctx context.Context, st store.Store) error {
	if err := loadShopLaunch(ctx, st); err != nil {
		return err
	}

	renamed := supplierAcme
	renamed.Name = "Acme Wholesale GmbH"
	added := catalog.Supplier{ID: "sup-inkwell", Name: "Inkwell Supplies", ContactName: "Sam Okafor", IsActive: true}
	if err := seed(ctx, st, store.Staging, "suppliers", renamed, supplierNordic, added); err != nil {
		return err
	}

	repriced := productPlanner
	repriced.Price = money("16.50")
	return seed(ctx, st, store.Staging, "products", productNotebook, productPen, repriced)
}

func loadStaleStaging(ctx context.Context, st store.Store) error {
	settings := []catalog.Setting{
		{ID: "hdr-logo", Section: catalog.SectionHeader, Key: "logoUrl", Value: "/img/logo.svg", SortOrder: 1},
		{ID: "hdr-tagline", Section: catalog.SectionHeader, Key: "tagline", Value: "Paper goods, made well", SortOrder: 2},
		{ID: "hero-title", Section: catalog.SectionHero, Key: "title", Value: "Autumn Collection", SortOrder: 1},
	}
	if err := seed(ctx, st, store.Production, "settings", settings...); err != nil {
		return err
	}
	return seed(ctx, st, store.Staging, "settings", settings...)
}

func loadDonationDrive(ctx context.Context, st store.Store) error {
	library := catalog.Donation{ID: "don-library", Title: "School Library Books", GoalAmount: money("5000"), RaisedAmount: money("3120.50"), IsActive: true}
	if err := seed(ctx, st, store.Production, "donations", library); err != nil {
		return err
	}

	updated := library
	updated.RaisedAmount = money("3480.50")
	garden := catalog.Donation{ID: "don-garden", Title: "Community Garden", Description: "Raised beds and tools", GoalAmount: money("1200"), RaisedAmount: decimal.Zero, IsActive: true}
	return seed(ctx, st, store.Staging, "donations", updated, garden)
}
