package domain

// ExtractPath walks a dot-separated field path through a document, fanning
// out across arrays encountered along the way (multikey semantics, spec
// §3 "parallel array"). It returns every leaf value reached and whether
// the path traversed at least one array, plus the array's own path prefix
// when it did (needed to populate CollectionStatistics.KnownArrayPrefixes).
func ExtractPath(doc Document, path string) (values []interface{}, arrayPrefix string, ok bool) {
	segments := splitPath(path)
	results, prefix, found := extractSegments(doc, segments, "")
	return results, prefix, found
}

func splitPath(path string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}
	segs = append(segs, path[start:])
	return segs
}

// extractSegments recurses through segments against cur (a Document, a
// nested map, a slice, or a scalar), returning the leaf values found and
// the deepest (innermost) array path prefix encountered, if any.
func extractSegments(cur interface{}, segments []string, pathSoFar string) ([]interface{}, string, bool) {
	if len(segments) == 0 {
		return []interface{}{cur}, "", true
	}

	head := segments[0]
	rest := segments[1:]
	nextPath := head
	if pathSoFar != "" {
		nextPath = pathSoFar + "." + head
	}

	switch v := cur.(type) {
	case Document:
		child, exists := v[head]
		if !exists {
			return nil, "", false
		}
		return extractSegments(child, rest, nextPath)
	case map[string]interface{}:
		child, exists := v[head]
		if !exists {
			return nil, "", false
		}
		return extractSegments(child, rest, nextPath)
	case []interface{}:
		var out []interface{}
		arrayPrefix := pathSoFar
		for _, elem := range v {
			vals, innerPrefix, found := extractSegments(elem, segments, pathSoFar)
			if found {
				out = append(out, vals...)
			}
			if innerPrefix != "" {
				arrayPrefix = innerPrefix
			}
		}
		if len(out) == 0 {
			return nil, arrayPrefix, false
		}
		return out, arrayPrefix, true
	default:
		return nil, "", false
	}
}
