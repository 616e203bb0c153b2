package conditions

import "strings"

// LookupField resolves a possibly dotted field name against nested maps.
// An exact top-level key wins over path traversal.
func LookupField(data map[string]any, field string) (any, bool) {
	if field == "" || data == nil {
		return nil, false
	}

	if v, ok := data[field]; ok {
		return v, true
	}

	var current any = data

	for _, part := range strings.Split(field, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}
