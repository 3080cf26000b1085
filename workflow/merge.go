package workflow

import (
	"encoding/json"
	"fmt"
)

// idField is never overwritten by a patch.
const idField = "id"

// Merge overlays patch on item by JSON field name and returns the result.
// Fields absent from the patch keep their value; the id is preserved.
func Merge[T Record](item T, patch Patch) (T, error) {
	var zero T

	raw, err := json.Marshal(item)
	if err != nil {
		return zero, fmt.Errorf("marshal record: %w", err)
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return zero, fmt.Errorf("record is not an object: %w", err)
	}

	for k, v := range patch {
		if k == idField {
			continue
		}
		enc, err := json.Marshal(v)
		if err != nil {
			return zero, fmt.Errorf("patch field %q: %w", k, err)
		}
		fields[k] = enc
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return zero, fmt.Errorf("marshal merged: %w", err)
	}
	var out T
	if err := json.Unmarshal(merged, &out); err != nil {
		return zero, fmt.Errorf("unmarshal merged: %w", err)
	}
	return out, nil
}
