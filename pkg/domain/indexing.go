package domain

// IndexEngine defines the interface for compound, multi-key, and hashed
// index operations (spec §3, §4.7). It replaces the single-field inverted
// index this package originally exposed: an index is now an ordered
// sequence of (path, direction) keys bound to a collection, not a bare
// field name, so the same engine can serve both manually-created
// single-field indexes and the advisor's recommended compound indexes.
type IndexEngine interface {
	// CreateIndex registers idx for collectionName; it does not index
	// documents already in the collection. idx.Name()
	// (or idx.ActualName, if already set) is the index's identity.
	CreateIndex(collectionName string, idx *CompoundIndex) error
	// DropIndex removes the index with the given name from a collection.
	DropIndex(collectionName, name string) error
	// GetIndexes lists every index currently defined on a collection.
	GetIndexes(collectionName string) ([]*CompoundIndex, error)
	// FindByIndex returns document IDs whose indexed key tuple equals
	// values, in the order idx.Keys specifies them.
	FindByIndex(collectionName string, idx *CompoundIndex, values []interface{}) ([]string, error)
}
