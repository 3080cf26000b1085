/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Staged records are
  not wrapped: a collection is served as its raw documents so clients get
  back exactly what they posted.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Envelopes around collections or status

SHAPES:
  Staging read:      {"success": true, "data": [...]}
  Production read:   {"<collectionKey>": [...]}
  Status:            {"success": true, ...}
  Error:             {"success": false, "error": "...", "details": "..."}

SEE ALSO:
  - handlers.go: Uses these types
  - remote/client.go: The client side of the same shapes
*/
package api

import (
	"time"

	"github.com/warp/staging-engine/catalog"
	"github.com/warp/staging-engine/store"
)

// =============================================================================
// COLLECTIONS
// =============================================================================

// StagingResponse is the staging read envelope.
type StagingResponse struct {
	Success bool             `json:"success"`
	Data    []store.Document `json:"data"`
}

// StatusResponse acknowledges a write.
type StatusResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count,omitempty"`
}

// PromoteResponse acknowledges a promotion.
type PromoteResponse struct {
	Success       bool   `json:"success"`
	PromotionID   string `json:"promotionId"`
	PromotedCount int    `json:"promotedCount"`
	PromotedAt    string `json:"promotedAt"`
}

// =============================================================================
// AUDIT
// =============================================================================

// PromotionDTO is one promotion audit entry.
type PromotionDTO struct {
	ID          string `json:"id"`
	Domain      string `json:"domain"`
	RecordCount int    `json:"record_count"`
	PromotedAt  string `json:"promoted_at"`
}

// PurgeRunDTO is one janitor purge.
type PurgeRunDTO struct {
	ID          string `json:"id"`
	Domain      string `json:"domain"`
	RecordCount int    `json:"record_count"`
	PurgedAt    string `json:"purged_at"`
}

func toPromotionDTO(p store.Promotion) PromotionDTO {
	return PromotionDTO{
		ID:          p.ID,
		Domain:      p.Domain,
		RecordCount: p.RecordCount,
		PromotedAt:  p.PromotedAt.Format(time.RFC3339),
	}
}

func toPurgeRunDTO(r store.PurgeRun) PurgeRunDTO {
	return PurgeRunDTO{
		ID:          r.ID,
		Domain:      r.Domain,
		RecordCount: r.RecordCount,
		PurgedAt:    r.PurgedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// DOMAINS
// =============================================================================

// DomainDTO describes a registered collection.
type DomainDTO struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	CollectionKey string `json:"collection_key"`
	DeleteStyle   string `json:"delete_style"`
}

func toDomainDTO(d catalog.Domain) DomainDTO {
	return DomainDTO{
		Name:          d.Name,
		Type:          d.Type,
		CollectionKey: d.CollectionKey,
		DeleteStyle:   string(d.DeleteStyle),
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
