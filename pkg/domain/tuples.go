package domain

// TuplesForPaths returns every value tuple a document contributes across
// an ordered list of field paths, fanning out across arrays encountered
// along any path (multikey semantics, spec §3 "parallel array"). Returns
// nil if any path is absent from the document.
func TuplesForPaths(doc Document, paths []string) [][]interface{} {
	tuples := [][]interface{}{{}}
	for _, path := range paths {
		values, _, ok := ExtractPath(doc, path)
		if !ok || len(values) == 0 {
			return nil
		}
		var next [][]interface{}
		for _, prefix := range tuples {
			for _, v := range values {
				t := make([]interface{}, len(prefix)+1)
				copy(t, prefix)
				t[len(prefix)] = v
				next = append(next, t)
			}
		}
		tuples = next
	}
	return tuples
}
