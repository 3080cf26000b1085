/*
handlers.go - HTTP API handlers for staged collections

PURPOSE:
  Exposes the staging and production areas of every registered domain
  over REST. Handles HTTP request/response, JSON serialization, record
  validation, and delegates persistence to store.Store.

ENDPOINTS:
  Collections (for each {domain} in the catalog registry):
    GET    /api/{domain}/staging          Staging snapshot {success, data}
    POST   /api/{domain}/staging          Replace staging {<key>: [...]}
    DELETE /api/{domain}/staging/{id}     Remove one staged record
    DELETE /api/{domain}/staging?id=      Same, query style
    GET    /api/{domain}/production       Production snapshot {<key>: [...]}
    POST   /api/{domain}/production       Promote staging to production
    GET    /api/{domain}/promotions       Promotion audit log

  Registry:
    GET    /api/domains                   Registered domains

  Janitor:
    GET    /api/janitor/runs              Stale staging purges

  Scenarios:
    GET    /api/scenarios                 List demo scenarios
    POST   /api/scenarios/load            Load a demo scenario
    POST   /api/scenarios/reset           Clear everything

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: staged and production documents, audit logs
  - Logger: structured logging (zap)
  - domains: the collections this server exposes

REQUEST FLOW:
  1. Resolve the domain from the URL
  2. Parse and validate the body (catalog.Domain.Check)
  3. Call the store
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  Errors are returned as {success: false, error, details}:
  - 400: Validation errors, invalid input, nothing to promote
  - 404: Unknown domain, record not found
  - 409: Duplicate id
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/staging-engine/catalog"
	"github.com/warp/staging-engine/store"
)

// maxBodyBytes caps a staging write.
const maxBodyBytes = 10 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  store.Store
	Logger *zap.Logger

	domains map[string]catalog.Domain

	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a handler serving the given domains, or every
// registered domain when none are given.
func NewHandler(st store.Store, logger *zap.Logger, domains ...catalog.Domain) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(domains) == 0 {
		domains = catalog.Domains()
	}
	byName := make(map[string]catalog.Domain, len(domains))
	for _, d := range domains {
		byName[d.Name] = d
	}
	return &Handler{
		Store:   st,
		Logger:  logger,
		domains: byName,
	}
}

// domain resolves {domain} or writes a 404.
func (h *Handler) domain(w http.ResponseWriter, r *http.Request) (catalog.Domain, bool) {
	name := chi.URLParam(r, "domain")
	d, ok := h.domains[name]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown domain %q", name), catalog.ErrUnknownDomain)
		return catalog.Domain{}, false
	}
	return d, true
}

// =============================================================================
// STAGING HANDLERS
// =============================================================================

// GetStaging returns the staging snapshot.
// GET /api/{domain}/staging
func (h *Handler) GetStaging(w http.ResponseWriter, r *http.Request) {
	d, ok := h.domain(w, r)
	if !ok {
		return
	}

	docs, err := h.Store.List(r.Context(), store.Staging, d.Name)
	if err != nil {
		h.fail(w, fmt.Sprintf("Failed to load %s from staging", d.Plural), err)
		return
	}

	writeJSON(w, http.StatusOK, StagingResponse{Success: true, Data: docs})
}

// SaveStaging replaces the staging snapshot with the posted collection.
// POST /api/{domain}/staging
func (h *Handler) SaveStaging(w http.ResponseWriter, r *http.Request) {
	d, ok := h.domain(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rawCollection, ok := body[d.CollectionKey]
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Missing %q collection", d.CollectionKey), nil)
		return
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(rawCollection, &raws); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%q must be an array", d.CollectionKey), err)
		return
	}

	ids, err := d.Check(raws)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), err)
		return
	}

	docs := make([]store.Document, len(raws))
	for i, raw := range raws {
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid record JSON", err)
			return
		}
		docs[i] = store.Document{ID: ids[i], Data: compact.Bytes()}
	}

	if err := h.Store.Replace(r.Context(), store.Staging, d.Name, docs); err != nil {
		h.fail(w, fmt.Sprintf("Failed to save %s to staging", d.Plural), err)
		return
	}

	h.Logger.Info("staging saved", zap.String("domain", d.Name), zap.Int("count", len(docs)))
	writeJSON(w, http.StatusOK, StatusResponse{Success: true, Count: len(docs)})
}

// DeleteStaging removes one record from staging. The id comes from the
// path or, for query-style domains, from ?id=.
// DELETE /api/{domain}/staging/{id}
// DELETE /api/{domain}/staging?id=
func (h *Handler) DeleteStaging(w http.ResponseWriter, r *http.Request) {
	d, ok := h.domain(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if r.URL.RawPath != "" {
		// chi routes on the escaped path when one is present
		if unescaped, err := url.PathUnescape(id); err == nil {
			id = unescaped
		}
	}
	if id == "" {
		id = r.URL.Query().Get("id")
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Missing %s id", d.Type), nil)
		return
	}

	err := h.Store.Delete(r.Context(), store.Staging, d.Name, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s %q not found in staging", d.Type, id), err)
		return
	}
	if err != nil {
		h.fail(w, fmt.Sprintf("Failed to delete %s from staging", d.Type), err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Success: true})
}

// =============================================================================
// PRODUCTION HANDLERS
// =============================================================================

// GetProduction returns the production snapshot under the collection key.
// GET /api/{domain}/production
func (h *Handler) GetProduction(w http.ResponseWriter, r *http.Request) {
	d, ok := h.domain(w, r)
	if !ok {
		return
	}

	docs, err := h.Store.List(r.Context(), store.Production, d.Name)
	if err != nil {
		h.fail(w, fmt.Sprintf("Failed to load %s from production", d.Plural), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]store.Document{d.CollectionKey: docs})
}

// Promote copies staging over production and clears staging.
// POST /api/{domain}/production
func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	d, ok := h.domain(w, r)
	if !ok {
		return
	}

	p, err := h.Store.Promote(r.Context(), d.Name)
	if errors.Is(err, store.ErrNothingToPromote) {
		writeError(w, http.StatusBadRequest, "No staging data to promote", err)
		return
	}
	if err != nil {
		h.fail(w, fmt.Sprintf("Failed to upload %s to production", d.Plural), err)
		return
	}

	h.Logger.Info("staging promoted",
		zap.String("domain", d.Name),
		zap.String("promotion_id", p.ID),
		zap.Int("count", p.RecordCount),
	)
	writeJSON(w, http.StatusOK, PromoteResponse{
		Success:       true,
		PromotionID:   p.ID,
		PromotedCount: p.RecordCount,
		PromotedAt:    p.PromotedAt.Format(time.RFC3339),
	})
}

// ListPromotions returns the newest promotions of a domain.
// GET /api/{domain}/promotions?limit=N
func (h *Handler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	d, ok := h.domain(w, r)
	if !ok {
		return
	}

	limit, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	runs, err := h.Store.Promotions(r.Context(), d.Name, limit)
	if err != nil {
		h.fail(w, "Failed to list promotions", err)
		return
	}

	dtos := make([]PromotionDTO, len(runs))
	for i, p := range runs {
		dtos[i] = toPromotionDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REGISTRY AND JANITOR HANDLERS
// =============================================================================

// ListDomains returns the served domains sorted by name.
// GET /api/domains
func (h *Handler) ListDomains(w http.ResponseWriter, r *http.Request) {
	dtos := make([]DomainDTO, 0, len(h.domains))
	for _, d := range catalog.Domains() {
		if served, ok := h.domains[d.Name]; ok {
			dtos = append(dtos, toDomainDTO(served))
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListPurgeRuns returns janitor purges, optionally for one domain.
// GET /api/janitor/runs?domain=&limit=
func (h *Handler) ListPurgeRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	runs, err := h.Store.PurgeRuns(r.Context(), r.URL.Query().Get("domain"), limit)
	if err != nil {
		h.fail(w, "Failed to list janitor runs", err)
		return
	}

	dtos := make([]PurgeRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toPurgeRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer, got %q", raw)
	}
	return n, nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrInvalidRecord), errors.Is(err, store.ErrNothingToPromote):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, catalog.ErrUnknownDomain):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateID):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status, logging server-side failures.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error(message, zap.Error(err))
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
