package providers

import (
	"encoding/json"
	"strconv"
	"strings"
)

// lookup walks a decoded JSON document. Numeric path elements index arrays.
func lookup(doc any, path ...string) any {
	current := doc
	for _, key := range path {
		switch node := current.(type) {
		case map[string]any:
			current = node[key]
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			current = node[i]
		default:
			return nil
		}
	}
	return current
}

// str returns the string at path, rendering JSON numbers without exponent.
func str(doc any, path ...string) string {
	switch v := lookup(doc, path...).(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
