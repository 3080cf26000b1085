package catalog

import (
	"encoding/json"
	"strconv"
)

// Entry is a schemaless record for tools that handle every domain the same
// way. Its id is the "id" field.
type Entry map[string]any

func (e Entry) RecordID() string {
	switch v := e["id"].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}
