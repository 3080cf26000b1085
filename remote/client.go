/*
Package remote implements the engine's stores over the REST resources.

PURPOSE:
  A Client[T] is both the StagingStore and the ProductionStore of one
  domain. It speaks the JSON shapes served by api/handlers.go:

    GET    <base>/staging            {success, data: [...]}
    POST   <base>/staging            body {<collectionKey>: [...]}
    DELETE <base>/staging/<id>       or <base>/staging?id=<id>
    GET    <base>/production         {<collectionKey>: [...]}   (or LoadFrom)
    POST   <base>/production         no body

ERRORS:
  Every failure is a *workflow.StoreError carrying the HTTP status and the
  server's "error" field, so the engine can tell a 404 on delete from any
  other failure and show the server's own reason.

SEE ALSO:
  - workflow/store.go: the interfaces implemented here
  - catalog/domains.go: collection keys and delete styles
*/
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/warp/staging-engine/catalog"
	"github.com/warp/staging-engine/workflow"
)

// DeleteURLFunc builds the delete URL of one staged record.
type DeleteURLFunc func(stagingURL, id string) string

// PathDelete addresses the record as a path segment.
func PathDelete(stagingURL, id string) string {
	return stagingURL + "/" + url.PathEscape(id)
}

// QueryDelete addresses the record with an id query parameter.
func QueryDelete(stagingURL, id string) string {
	return stagingURL + "?id=" + url.QueryEscape(id)
}

// Endpoint locates one domain's resources.
type Endpoint struct {
	// BaseURL is the domain root, e.g. http://localhost:8080/api/suppliers.
	BaseURL string

	// Type is the singular tag used in error messages.
	Type string

	// CollectionKey is the JSON key wrapping the collection.
	CollectionKey string

	// LoadFrom overrides the URL production snapshots are read from.
	LoadFrom string

	// DeleteURL defaults to PathDelete.
	DeleteURL DeleteURLFunc
}

// EndpointFor derives the endpoint of a registered domain.
func EndpointFor(apiURL string, d catalog.Domain) Endpoint {
	ep := Endpoint{
		BaseURL:       strings.TrimRight(apiURL, "/") + "/" + d.Name,
		Type:          d.Type,
		CollectionKey: d.CollectionKey,
		DeleteURL:     PathDelete,
	}
	if d.DeleteStyle == catalog.DeleteQuery {
		ep.DeleteURL = QueryDelete
	}
	return ep
}

func (ep Endpoint) stagingURL() string {
	return strings.TrimRight(ep.BaseURL, "/") + "/staging"
}

func (ep Endpoint) productionURL() string {
	return strings.TrimRight(ep.BaseURL, "/") + "/production"
}

func (ep Endpoint) loadURL() string {
	if ep.LoadFrom != "" {
		return ep.LoadFrom
	}
	return ep.productionURL()
}

// Client is a REST-backed StagingStore and ProductionStore.
type Client[T workflow.Record] struct {
	ep   Endpoint
	http *http.Client
}

var (
	_ workflow.StagingStore[catalog.Entry]    = (*Client[catalog.Entry])(nil)
	_ workflow.ProductionStore[catalog.Entry] = (*Client[catalog.Entry])(nil)
)

// New creates a client. A nil httpClient gets a 15s timeout client.
func New[T workflow.Record](ep Endpoint, httpClient *http.Client) *Client[T] {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if ep.DeleteURL == nil {
		ep.DeleteURL = PathDelete
	}
	if ep.Type == "" {
		ep.Type = "item"
	}
	return &Client[T]{ep: ep, http: httpClient}
}

// =============================================================================
// WIRE SHAPES
// =============================================================================

type stagingResponse[T any] struct {
	Success bool   `json:"success"`
	Data    []T    `json:"data"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// =============================================================================
// STAGING STORE
// =============================================================================

// LoadStaging fetches the staging snapshot.
func (c *Client[T]) LoadStaging(ctx context.Context) ([]T, error) {
	body, err := c.do(ctx, http.MethodGet, c.ep.stagingURL(), nil, "load", "from staging")
	if err != nil {
		return nil, err
	}

	var resp stagingResponse[T]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, c.storeError("load", "from staging", http.StatusOK, "", fmt.Errorf("decode: %w", err))
	}
	if !resp.Success {
		return nil, c.storeError("load", "from staging", http.StatusOK, resp.Error, nil)
	}
	if resp.Data == nil {
		return []T{}, nil
	}
	return resp.Data, nil
}

// SaveStaging replaces the staging snapshot.
func (c *Client[T]) SaveStaging(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	payload := map[string]any{c.ep.CollectionKey: items}
	body, err := c.do(ctx, http.MethodPost, c.ep.stagingURL(), payload, "save", "to staging")
	if err != nil {
		return err
	}
	return c.checkStatus(body, "save", "to staging")
}

// DeleteStaging removes one staged record.
func (c *Client[T]) DeleteStaging(ctx context.Context, id string) error {
	body, err := c.do(ctx, http.MethodDelete, c.ep.DeleteURL(c.ep.stagingURL(), id), nil, "delete", "from staging")
	if err != nil {
		return err
	}
	return c.checkStatus(body, "delete", "from staging")
}

// =============================================================================
// PRODUCTION STORE
// =============================================================================

// LoadProduction fetches the production snapshot.
func (c *Client[T]) LoadProduction(ctx context.Context) ([]T, error) {
	body, err := c.do(ctx, http.MethodGet, c.ep.loadURL(), nil, "load", "from production")
	if err != nil {
		return nil, err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, c.storeError("load", "from production", http.StatusOK, "", fmt.Errorf("decode: %w", err))
	}
	raw, ok := envelope[c.ep.CollectionKey]
	if !ok || string(raw) == "null" {
		return []T{}, nil
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, c.storeError("load", "from production", http.StatusOK, "", fmt.Errorf("decode %s: %w", c.ep.CollectionKey, err))
	}
	return items, nil
}

// Promote asks the server to adopt staging as production.
func (c *Client[T]) Promote(ctx context.Context) error {
	body, err := c.do(ctx, http.MethodPost, c.ep.productionURL(), nil, "upload", "to production")
	if err != nil {
		return err
	}
	return c.checkStatus(body, "upload", "to production")
}

// =============================================================================
// TRANSPORT
// =============================================================================

// do performs one request and returns the body of a 2xx response. Non-2xx
// responses become a StoreError with the server's reason when present.
func (c *Client[T]) do(ctx context.Context, method, target string, payload any, op, location string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		enc, err := json.Marshal(payload)
		if err != nil {
			return nil, c.storeError(op, location, 0, "", fmt.Errorf("encode: %w", err))
		}
		reqBody = bytes.NewReader(enc)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, c.storeError(op, location, 0, "", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.storeError(op, location, 0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.storeError(op, location, resp.StatusCode, "", fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var status statusResponse
		_ = json.Unmarshal(body, &status)
		return nil, c.storeError(op, location, resp.StatusCode, status.Error, nil)
	}
	return body, nil
}

func (c *Client[T]) checkStatus(body []byte, op, location string) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var status statusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return c.storeError(op, location, http.StatusOK, "", fmt.Errorf("decode: %w", err))
	}
	if !status.Success {
		return c.storeError(op, location, http.StatusOK, status.Error, nil)
	}
	return nil
}

func (c *Client[T]) storeError(op, location string, status int, reason string, err error) error {
	return &workflow.StoreError{
		Domain:   c.ep.Type,
		Op:       op,
		Location: location,
		Status:   status,
		Reason:   reason,
		Err:      err,
	}
}
