package domain

import "errors"

// ErrIndexTooLarge is returned by DataSource.CreateIndex when an index
// entry would exceed the database's maximum indexable value size (spec
// §4.5, §7 "index-too-large on create").
var ErrIndexTooLarge = errors.New("index entry too large to index")

// DataSource is the engine's external database collaborator contract
// (spec §6): counting, sampled random-offset reads, the profiling stream,
// and index create/drop/list. A namespace here is a single collection
// name; this repository's embedded store has no separate database layer
// above collections.
type DataSource interface {
	// CountDocuments returns the current document count for a collection.
	CountDocuments(namespace string) (int64, error)

	// SampleDocuments returns up to min(n, count) documents drawn
	// uniformly at random without replacement, visited in ascending
	// document-ID order (spec §4.3).
	SampleDocuments(namespace string, n int) ([]Document, error)

	// ProfileStream returns the channel of profiling records observed by
	// the database, in arrival order (spec §5, §6).
	ProfileStream() <-chan ProfileRecord

	// CreateIndex creates idx on its collection. Returns ErrIndexTooLarge
	// when the create fails because a sampled value exceeds the
	// database's indexable size (spec §4.5, §7).
	CreateIndex(idx *CompoundIndex) error

	// DropIndex removes the named index from a collection.
	DropIndex(namespace, name string) error

	// ListIndexes lists every index currently defined on a collection.
	ListIndexes(namespace string) ([]*CompoundIndex, error)
}

// StatePersister is the engine's state-document collaborator contract
// (spec §6 interface requirement (f)): upsert/read a single state
// document in a configurable collection. The engine assumes it is the
// only writer of that document (spec §5, "one engine instance per
// database").
type StatePersister interface {
	UpsertState(collection string, doc Document) error
	ReadState(collection string) (Document, bool, error)
}
