/*
Package catalog defines the records managed through staging.

PURPOSE:
  The admin console edits several collections with the same
  staging → production workflow: shop suppliers, categories, products and
  tax rules, donation campaigns, and header/hero page settings. This
  package holds their typed records, validation rules, and the registry
  that tells the server and the REST client how each collection is
  addressed (see domains.go).

MONEY:
  Prices, rates and amounts are decimal.Decimal so that "8.50" and "8.5"
  compare equal and no float rounding leaks into stored data.

SEE ALSO:
  - domains.go: Domain registry
  - entry.go: schemaless record used by the CLI
  - workflow/engine.go: the engine these records flow through
*/
package catalog

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SHOP
// =============================================================================

// Supplier provides products to the shop.
type Supplier struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContactName string `json:"contactName,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	IsActive    bool   `json:"isActive"`
}

func (s Supplier) RecordID() string { return s.ID }

func (s Supplier) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return invalid("supplier", s.ID, "name", "is required")
	}
	if s.Email != "" && !strings.Contains(s.Email, "@") {
		return invalid("supplier", s.ID, "email", "is not an email address")
	}
	return nil
}

// Category groups products. ParentID is empty for top-level categories.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	ParentID  string `json:"parentId,omitempty"`
	SortOrder int    `json:"sortOrder"`
	IsActive  bool   `json:"isActive"`
}

func (c Category) RecordID() string { return c.ID }

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("category", c.ID, "name", "is required")
	}
	if c.Slug == "" || strings.ContainsAny(c.Slug, " /?#") {
		return invalid("category", c.ID, "slug", "must be a non-empty URL segment")
	}
	if c.ParentID != "" && c.ParentID == c.ID {
		return invalid("category", c.ID, "parentId", "cannot reference itself")
	}
	return nil
}

// Product is a sellable item.
type Product struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	SKU        string          `json:"sku"`
	CategoryID string          `json:"categoryId,omitempty"`
	SupplierID string          `json:"supplierId,omitempty"`
	TaxRuleID  string          `json:"taxRuleId,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	IsActive   bool            `json:"isActive"`
}

func (p Product) RecordID() string { return p.ID }

func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("product", p.ID, "name", "is required")
	}
	if p.SKU == "" {
		return invalid("product", p.ID, "sku", "is required")
	}
	if p.Price.IsNegative() {
		return invalid("product", p.ID, "price", "cannot be negative")
	}
	if p.Stock < 0 {
		return invalid("product", p.ID, "stock", "cannot be negative")
	}
	return nil
}

var hundred = decimal.NewFromInt(100)

// TaxRule is a sales tax rate in percent.
type TaxRule struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Country   string          `json:"country"`
	Rate      decimal.Decimal `json:"rate"`
	IsDefault bool            `json:"isDefault"`
}

func (r TaxRule) RecordID() string { return r.ID }

func (r TaxRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return invalid("tax", r.ID, "name", "is required")
	}
	if r.Rate.IsNegative() || r.Rate.GreaterThan(hundred) {
		return invalid("tax", r.ID, "rate", "must be between 0 and 100")
	}
	if len(r.Country) != 2 {
		return invalid("tax", r.ID, "country", "must be an ISO 3166 alpha-2 code")
	}
	return nil
}

// =============================================================================
// DONATIONS
// =============================================================================

// Donation is a fundraising campaign shown on the public site.
type Donation struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	GoalAmount   decimal.Decimal `json:"goalAmount"`
	RaisedAmount decimal.Decimal `json:"raisedAmount"`
	IsActive     bool            `json:"isActive"`
}

func (d Donation) RecordID() string { return d.ID }

func (d Donation) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return invalid("donation", d.ID, "title", "is required")
	}
	if !d.GoalAmount.IsPositive() {
		return invalid("donation", d.ID, "goalAmount", "must be positive")
	}
	if d.RaisedAmount.IsNegative() {
		return invalid("donation", d.ID, "raisedAmount", "cannot be negative")
	}
	return nil
}

// =============================================================================
// PAGE LAYOUT
// =============================================================================

// Section is a layout area of the public site.
type Section string

const (
	SectionHeader Section = "header"
	SectionHero   Section = "hero"
)

// Setting is one key/value of the header or hero layout.
type Setting struct {
	ID        string  `json:"id"`
	Section   Section `json:"section"`
	Key       string  `json:"key"`
	Value     string  `json:"value"`
	SortOrder int     `json:"sortOrder"`
}

func (s Setting) RecordID() string { return s.ID }

func (s Setting) Validate() error {
	if s.Section != SectionHeader && s.Section != SectionHero {
		return invalid("setting", s.ID, "section", fmt.Sprintf("must be %q or %q", SectionHeader, SectionHero))
	}
	if s.Key == "" {
		return invalid("setting", s.ID, "key", "is required")
	}
	return nil
}
