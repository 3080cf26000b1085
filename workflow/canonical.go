package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// EqualFunc reports whether two records have the same content.
type EqualFunc[T any] func(a, b T) bool

// Canonicalize renders v as canonical JSON: object keys sorted, strings NFC
// normalized, numbers in shortest decimal form, no HTML escaping. Two values
// with the same content always produce the same bytes regardless of field
// order or numeric spelling ("1.50" and "1.5").
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	tree, err = normalize(tree)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func normalize(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return norm.NFC.String(val), nil
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", val, err)
		}
		return json.Number(d.String()), nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			n, err := normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			n, err := normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			out[norm.NFC.String(k)] = n
		}
		return out, nil
	default:
		// bool, nil
		return val, nil
	}
}

// CanonicalEqual compares a and b by their canonical JSON. Values that cannot
// be serialized fall back to reflect.DeepEqual.
func CanonicalEqual[T any](a, b T) bool {
	ca, errA := Canonicalize(a)
	cb, errB := Canonicalize(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ca, cb)
}
