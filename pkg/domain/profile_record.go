package domain

import "go.mongodb.org/mongo-driver/bson/primitive"

// ProfileRecord is the portion of a database profiler entry the engine
// consumes (spec §6, "profile record shape (consumed)"): namespace,
// predicate, sort, and which index (if any) served the query.
type ProfileRecord struct {
	Namespace string
	Query     primitive.D
	Sort      primitive.D

	// IndexKeyPattern is the execStats IXSCAN node's keyPattern text when
	// one served the query; empty for a collection scan.
	IndexKeyPattern string
}

// SortKeysFromDoc converts a profile record's orderby document into
// ordered SortKeys, preserving declaration order (spec §3, "ordered sort
// keys").
func SortKeysFromDoc(doc primitive.D) []SortKey {
	if len(doc) == 0 {
		return nil
	}
	keys := make([]SortKey, 0, len(doc))
	for _, el := range doc {
		dir := Ascending
		if isNegative(el.Value) {
			dir = Descending
		}
		keys = append(keys, SortKey{Path: el.Key, Direction: dir})
	}
	return keys
}

func isNegative(v interface{}) bool {
	switch n := v.(type) {
	case int:
		return n < 0
	case int32:
		return n < 0
	case int64:
		return n < 0
	case float64:
		return n < 0
	default:
		return false
	}
}
