// Package storesource adapts this repository's embedded storage and index
// engines into the domain.DataSource contract the advisor engine consumes
// (spec §6). It is the one package allowed to know about both pkg/storage
// and the index advisor; everything downstream of it only sees
// domain.DataSource.
package storesource

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/autoindex/idxadvisor/internal/metrics"
	"github.com/autoindex/idxadvisor/pkg/domain"
	"github.com/autoindex/idxadvisor/pkg/storage"
)

// DataSource implements domain.DataSource over a *storage.StorageEngine. A
// namespace here is a single collection name; this repository has no
// separate database layer above collections.
type DataSource struct {
	store            *storage.StorageEngine
	longestIndexable int
	profiles         chan domain.ProfileRecord
}

// New creates a DataSource over store. longestIndexable mirrors
// domain.Config.LongestIndexable at construction time and gates
// CreateIndex's "value too large to index" failure mode (spec §3, §7).
func New(store *storage.StorageEngine, longestIndexable int) *DataSource {
	return &DataSource{
		store:            store,
		longestIndexable: longestIndexable,
		profiles:         make(chan domain.ProfileRecord, 256),
	}
}

// SetLongestIndexable updates the create-time size guard, e.g. after a
// live configuration change.
func (ds *DataSource) SetLongestIndexable(n int) { ds.longestIndexable = n }

// CountDocuments returns the current document count for a collection.
func (ds *DataSource) CountDocuments(namespace string) (int64, error) {
	coll, err := ds.store.GetCollection(namespace)
	if err != nil {
		return 0, err
	}
	return int64(len(coll.Documents)), nil
}

// SampleDocuments draws up to min(n, count) documents from namespace at
// indices chosen uniformly without replacement, visited in ascending
// document-ID order (spec §4.3). Document IDs are UUIDs assigned at
// insert time, not a monotonically increasing cursor, so "ascending
// primary-key order" here means lexicographic ID order; the skip-delta
// walk spec §4.3 describes collapses to a single pass over the sorted ID
// slice once offsets are chosen.
func (ds *DataSource) SampleDocuments(namespace string, n int) ([]domain.Document, error) {
	coll, err := ds.store.GetCollection(namespace)
	if err != nil {
		return nil, err
	}

	total := len(coll.Documents)
	if total == 0 || n <= 0 {
		return nil, nil
	}
	if n > total {
		n = total
	}

	ids := make([]string, 0, total)
	for id := range coll.Documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	offsets := uniqueSortedOffsets(total, n)
	docs := make([]domain.Document, 0, len(offsets))
	for _, off := range offsets {
		if doc, ok := coll.Documents[ids[off]]; ok {
			docs = append(docs, doc)
		}
		// A skipped slot whose document vanished between count and fetch
		// is silently skipped (spec §4.3).
	}
	return docs, nil
}

// uniqueSortedOffsets chooses n distinct offsets in [0, total) uniformly
// at random without replacement, then sorts them so the caller can walk
// the ID slice in one ascending pass (spec §4.3, "drawn at indices chosen
// uniformly without replacement ... then visited in sorted order").
func uniqueSortedOffsets(total, n int) []int {
	chosen := make(map[int]struct{}, n)
	for len(chosen) < n {
		chosen[rand.Intn(total)] = struct{}{}
	}
	offsets := make([]int, 0, n)
	for off := range chosen {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)
	return offsets
}

// ProfileStream returns the channel of profile records observed by the
// store. RecordQuery is the producer side, called by pkg/api's query
// handlers.
func (ds *DataSource) ProfileStream() <-chan domain.ProfileRecord {
	return ds.profiles
}

// RecordQuery publishes one observed query as a profile record. It never
// blocks: a full buffer drops the record and logs a warning, matching a
// real profiler's own bounded-buffer behavior under load.
func (ds *DataSource) RecordQuery(namespace string, query, sort primitive.D, indexKeyPattern string) {
	record := domain.ProfileRecord{Namespace: namespace, Query: query, Sort: sort, IndexKeyPattern: indexKeyPattern}
	select {
	case ds.profiles <- record:
		metrics.QueriesObservedTotal.WithLabelValues(namespace).Inc()
	default:
		log.Warn().Str("namespace", namespace).Msg("profile stream buffer full, dropping record")
	}
}

// CreateIndex creates idx on its collection, refusing with
// domain.ErrIndexTooLarge if any currently-stored document carries a
// value on one of idx's paths longer than the configured threshold (spec
// §3, §7 "index-too-large on create"). A real document database enforces
// this limit server-side; this embedded store enforces it here instead.
func (ds *DataSource) CreateIndex(idx *domain.CompoundIndex) error {
	coll, err := ds.store.GetCollection(idx.Namespace)
	if err != nil {
		return err
	}
	for _, doc := range coll.Documents {
		for _, path := range idx.Paths() {
			values, _, ok := domain.ExtractPath(doc, path)
			if !ok {
				continue
			}
			for _, v := range values {
				if len(fmt.Sprintf("%v", v)) > ds.longestIndexable {
					return fmt.Errorf("create index %s on %s: %w", idx.Name(), idx.Namespace, domain.ErrIndexTooLarge)
				}
			}
		}
	}
	return ds.store.CreateCompoundIndex(idx.Namespace, idx)
}

// DropIndex removes the named index from a collection.
func (ds *DataSource) DropIndex(namespace, name string) error {
	return ds.store.DropIndex(namespace, name)
}

// ListIndexes lists every index currently defined on a collection.
func (ds *DataSource) ListIndexes(namespace string) ([]*domain.CompoundIndex, error) {
	return ds.store.GetIndexes(namespace)
}

// stateDocID is the fixed document identity the engine's single state
// document is upserted under within its reserved collection (spec §5,
// "engine writes a single state document ... last-writer-wins upsert").
const stateDocID = "engine_state"

// UpsertState writes the engine's single state document into collection,
// creating the collection if it doesn't exist yet.
func (ds *DataSource) UpsertState(collection string, doc domain.Document) error {
	return ds.store.UpsertByID(collection, stateDocID, doc)
}

// ReadState reads the engine's single state document from collection, if
// one exists.
func (ds *DataSource) ReadState(collection string) (domain.Document, bool, error) {
	if _, err := ds.store.GetCollection(collection); err != nil {
		return nil, false, nil
	}
	doc, err := ds.store.GetById(collection, stateDocID)
	if err != nil {
		return nil, false, nil
	}
	return doc, true, nil
}
