package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// metadataListDelimiter joins slice-valued metadata fields into a
// single scalar string; chosen to avoid colliding with path separators
// or common tag characters in source metadata.
const metadataListDelimiter = "|"

// FlattenMetadata reduces an arbitrary metadata map to the scalar-only
// shape a VectorStore can persist (§4.3 Storage): scalars pass through
// unchanged, slices are joined into one delimited string, nested maps
// are JSON-stringified, and nil values are dropped. This is the
// canonical place flattening happens; parsers and extractors should
// hand back whatever native Go values are convenient and let Run's
// call to FlattenMetadata do the rest.
func FlattenMetadata(meta map[string]interface{}) map[string]string {
	flat := make(map[string]string, len(meta))
	for k, v := range meta {
		if v == nil {
			continue
		}
		flat[k] = flattenValue(v)
	}
	return flat
}

func flattenValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		return strings.Join(val, metadataListDelimiter)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			parts = append(parts, flattenValue(item))
		}
		return strings.Join(parts, metadataListDelimiter)
	case map[string]interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}
