package domain

// FlattenedPath is one leaf path's contribution from a single document,
// produced by FlattenDocument (spec §4.3, "collection sampling").
type FlattenedPath struct {
	Path string
	// Values holds every value this document contributed at Path; more
	// than one only when Path crosses an array. Empty arrays contribute a
	// path entry with no values ("path.[]").
	Values []interface{}
	// ArrayPrefixes holds every ancestor path of Path that was an array
	// marker (spec §3: "arrayPrefixes = all ancestors of the path that
	// were array markers"), nearest enclosing array last.
	ArrayPrefixes []string
}

// FlattenDocument walks every leaf path of doc, fanning out across arrays
// and canonicalizing each array's position segment to a "[]" marker (spec
// §4.3: "flatten into {path → value}, canonicalize array-position
// segments to an array marker").
func FlattenDocument(doc Document) []FlattenedPath {
	var out []FlattenedPath
	collectPaths(map[string]interface{}(doc), "", nil, &out)
	return out
}

func collectPaths(v interface{}, path string, arrayPrefixes []string, out *[]FlattenedPath) {
	switch t := v.(type) {
	case Document:
		walkMap(map[string]interface{}(t), path, arrayPrefixes, out)
	case map[string]interface{}:
		walkMap(t, path, arrayPrefixes, out)
	case []interface{}:
		arrPath := path + ".[]"
		if path == "" {
			arrPath = "[]"
		}
		nextPrefixes := append(append([]string(nil), arrayPrefixes...), path)
		if len(t) == 0 {
			*out = append(*out, FlattenedPath{Path: arrPath, ArrayPrefixes: nextPrefixes})
			return
		}
		for _, elem := range t {
			collectPaths(elem, arrPath, nextPrefixes, out)
		}
	default:
		*out = append(*out, FlattenedPath{Path: path, Values: []interface{}{v}, ArrayPrefixes: arrayPrefixes})
	}
}

func walkMap(m map[string]interface{}, path string, arrayPrefixes []string, out *[]FlattenedPath) {
	for k, v := range m {
		child := k
		if path != "" {
			child = path + "." + k
		}
		collectPaths(v, child, arrayPrefixes, out)
	}
}
