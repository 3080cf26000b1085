package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
)

// =============================================================================
// DOMAIN REGISTRY
// =============================================================================

// DeleteStyle says how a staging delete identifies its record.
type DeleteStyle string

const (
	// DeletePath: DELETE <base>/staging/<id>
	DeletePath DeleteStyle = "path"

	// DeleteQuery: DELETE <base>/staging?id=<id>
	DeleteQuery DeleteStyle = "query"
)

// Domain describes one staged collection.
type Domain struct {
	Name          string      // URL segment, e.g. "suppliers"
	Type          string      // singular tag for messages, e.g. "supplier"
	Plural        string      // whole-collection tag, e.g. "suppliers"
	CollectionKey string      // JSON key of the collection in request/response bodies
	DeleteStyle   DeleteStyle

	check func(raw json.RawMessage) (string, error)
}

type validatable interface {
	RecordID() string
	Validate() error
}

func checker[T validatable](typ string) func(json.RawMessage) (string, error) {
	return func(raw json.RawMessage) (string, error) {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return "", &ValidationError{Type: typ, Field: "body", Message: err.Error()}
		}
		if rec.RecordID() == "" {
			return "", invalid(typ, "", "id", "is required")
		}
		if err := rec.Validate(); err != nil {
			return "", err
		}
		return rec.RecordID(), nil
	}
}

var registry = map[string]Domain{
	"suppliers": {
		Name: "suppliers", Type: "supplier", Plural: "suppliers",
		CollectionKey: "suppliers", DeleteStyle: DeletePath,
		check: checker[Supplier]("supplier"),
	},
	"categories": {
		Name: "categories", Type: "category", Plural: "categories",
		CollectionKey: "categories", DeleteStyle: DeletePath,
		check: checker[Category]("category"),
	},
	"products": {
		Name: "products", Type: "product", Plural: "products",
		CollectionKey: "products", DeleteStyle: DeletePath,
		check: checker[Product]("product"),
	},
	"taxes": {
		Name: "taxes", Type: "tax", Plural: "taxes",
		CollectionKey: "taxes", DeleteStyle: DeletePath,
		check: checker[TaxRule]("tax"),
	},
	"donations": {
		Name: "donations", Type: "donation", Plural: "donations",
		CollectionKey: "donations", DeleteStyle: DeletePath,
		check: checker[Donation]("donation"),
	},
	"settings": {
		Name: "settings", Type: "setting", Plural: "settings",
		CollectionKey: "settings", DeleteStyle: DeleteQuery,
		check: checker[Setting]("setting"),
	},
}

// Lookup returns the registered domain with the given name.
func Lookup(name string) (Domain, error) {
	d, ok := registry[name]
	if !ok {
		return Domain{}, fmt.Errorf("%w: %q", ErrUnknownDomain, name)
	}
	return d, nil
}

// Domains returns all registered domains sorted by name.
func Domains() []Domain {
	out := make([]Domain, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Check validates raw records and returns their ids in order. Ids must be
// unique within the collection.
func (d Domain) Check(raws []json.RawMessage) ([]string, error) {
	ids := make([]string, len(raws))
	seen := make(map[string]bool, len(raws))
	for i, raw := range raws {
		id, err := d.check(raw)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, invalid(d.Type, id, "id", "is duplicated")
		}
		seen[id] = true
		ids[i] = id
	}
	return ids, nil
}
