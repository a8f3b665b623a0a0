// Package indexing builds and maintains compound, multi-key indexes over
// the documents held by pkg/storage. It implements domain.IndexEngine and
// is the concrete engine the index advisor's recommendations are applied
// against.
package indexing

import (
	"fmt"
	"strings"
	"sync"

	"github.com/autoindex/idxadvisor/pkg/domain"
)

// IndexEngine implements domain.IndexEngine. It also exposes a handful of
// storage-internal helpers (BuildIndexForCollection, UpdateIndexForDocument,
// ExportIndexes/ImportIndexes, RebuildIndexForCollection) that pkg/storage
// uses to keep indexes in sync with documents and persist their
// definitions across restarts.
type IndexEngine struct {
	mu      sync.RWMutex
	indexes map[string]map[string]*Index // collection -> index name -> index
}

// NewIndexEngine creates an empty index engine.
func NewIndexEngine() *IndexEngine {
	return &IndexEngine{
		indexes: make(map[string]map[string]*Index),
	}
}

// Index maintains the postings for one compound index: a serialized key
// tuple maps to the set of document IDs whose extracted values produced
// that tuple. A document with an array along one of the index's paths
// contributes one posting per fanned-out tuple (multikey semantics).
type Index struct {
	mu       sync.RWMutex
	Def      *domain.CompoundIndex
	postings map[string]map[string]struct{} // serialized tuple -> doc IDs
}

// NewIndex creates an empty index for def.
func NewIndex(def *domain.CompoundIndex) *Index {
	return &Index{
		Def:      def,
		postings: make(map[string]map[string]struct{}),
	}
}

// serializeTuple renders a value tuple the same way regardless of the
// concrete Go type of each value, so lookups and builds agree on keys.
func serializeTuple(values []interface{}) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		fmt.Fprintf(&b, "%v", v)
	}
	return b.String()
}

// tuplesForDoc returns every value tuple a document contributes to this
// index, fanning out across arrays found along any of the index's paths.
func tuplesForDoc(doc domain.Document, paths []string) [][]interface{} {
	return domain.TuplesForPaths(doc, paths)
}

// add inserts docID under every tuple the document produces.
func (idx *Index) add(docID string, doc domain.Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, tuple := range tuplesForDoc(doc, idx.Def.Paths()) {
		key := serializeTuple(tuple)
		set, ok := idx.postings[key]
		if !ok {
			set = make(map[string]struct{})
			idx.postings[key] = set
		}
		set[docID] = struct{}{}
	}
}

// remove deletes docID from every tuple the document produces.
func (idx *Index) remove(docID string, doc domain.Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, tuple := range tuplesForDoc(doc, idx.Def.Paths()) {
		key := serializeTuple(tuple)
		if set, ok := idx.postings[key]; ok {
			delete(set, docID)
			if len(set) == 0 {
				delete(idx.postings, key)
			}
		}
	}
}

// Query returns document IDs whose tuple equals values exactly. Exported
// for the query fast path in pkg/storage, which looks up a single-field
// index directly rather than going through the engine's FindByIndex.
func (idx *Index) Query(values []interface{}) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set, ok := idx.postings[serializeTuple(values)]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// build replaces the index's postings from scratch against collection.
func (idx *Index) build(collection *domain.Collection) {
	idx.mu.Lock()
	idx.postings = make(map[string]map[string]struct{})
	idx.mu.Unlock()
	for docID, doc := range collection.Documents {
		idx.add(docID, doc)
	}
}

// CreateIndex registers idx for collectionName without indexing any
// existing documents (BuildIndexForCollection does that). If an index
// with the same canonical name already exists, CreateIndex is a no-op
// (idempotent create, needed since the reconciler only issues create for
// genuinely missing indexes but manual API calls may race it).
func (ie *IndexEngine) CreateIndex(collectionName string, def *domain.CompoundIndex) error {
	name := def.EffectiveName()

	ie.mu.Lock()
	if ie.indexes[collectionName] == nil {
		ie.indexes[collectionName] = make(map[string]*Index)
	}
	if _, exists := ie.indexes[collectionName][name]; exists {
		ie.mu.Unlock()
		return nil
	}
	idx := NewIndex(def)
	ie.indexes[collectionName][name] = idx
	ie.mu.Unlock()

	return nil
}

// DropIndex removes the named index from a collection.
func (ie *IndexEngine) DropIndex(collectionName, name string) error {
	ie.mu.Lock()
	defer ie.mu.Unlock()
	coll, exists := ie.indexes[collectionName]
	if !exists {
		return fmt.Errorf("no indexes exist for collection %s", collectionName)
	}
	if _, exists := coll[name]; !exists {
		return fmt.Errorf("index %s does not exist on collection %s", name, collectionName)
	}
	delete(coll, name)
	return nil
}

// GetIndexes lists every index currently defined on a collection.
func (ie *IndexEngine) GetIndexes(collectionName string) ([]*domain.CompoundIndex, error) {
	ie.mu.RLock()
	defer ie.mu.RUnlock()
	coll, exists := ie.indexes[collectionName]
	if !exists {
		return nil, nil
	}
	out := make([]*domain.CompoundIndex, 0, len(coll))
	for name, idx := range coll {
		def := idx.Def.Clone()
		def.ActualName = name
		out = append(out, def)
	}
	return out, nil
}

// FindByIndex returns document IDs whose indexed key tuple equals values.
func (ie *IndexEngine) FindByIndex(collectionName string, def *domain.CompoundIndex, values []interface{}) ([]string, error) {
	ie.mu.RLock()
	idx, exists := ie.getIndexLocked(collectionName, def.EffectiveName())
	ie.mu.RUnlock()
	if !exists {
		return nil, nil
	}
	return idx.Query(values), nil
}

// GetIndex returns the named index on a collection, if present. It is used
// internally by pkg/storage's query fast path, which looks indexes up by
// canonical name rather than by reconstructing a CompoundIndex.
func (ie *IndexEngine) GetIndex(collectionName, name string) (*Index, bool) {
	ie.mu.RLock()
	defer ie.mu.RUnlock()
	return ie.getIndexLocked(collectionName, name)
}

func (ie *IndexEngine) getIndexLocked(collectionName, name string) (*Index, bool) {
	coll, exists := ie.indexes[collectionName]
	if !exists {
		return nil, false
	}
	idx, exists := coll[name]
	return idx, exists
}

// BuildIndexForCollection builds or rebuilds a single index from scratch.
func (ie *IndexEngine) BuildIndexForCollection(collectionName, name string, collection *domain.Collection) error {
	ie.mu.RLock()
	idx, exists := ie.getIndexLocked(collectionName, name)
	ie.mu.RUnlock()
	if !exists {
		return fmt.Errorf("index %s does not exist on collection %s", name, collectionName)
	}
	idx.build(collection)
	return nil
}

// RebuildIndexForCollection rebuilds every index currently registered for
// a collection, used after a collection is lazily loaded from disk.
func (ie *IndexEngine) RebuildIndexForCollection(collectionName string, collection *domain.Collection) {
	ie.mu.RLock()
	coll := ie.indexes[collectionName]
	indexes := make([]*Index, 0, len(coll))
	for _, idx := range coll {
		indexes = append(indexes, idx)
	}
	ie.mu.RUnlock()

	for _, idx := range indexes {
		idx.build(collection)
	}
}

// UpdateIndexForDocument applies a document change to every index defined
// on a collection: oldDoc is nil on insert, newDoc is nil on delete.
func (ie *IndexEngine) UpdateIndexForDocument(collectionName, docID string, oldDoc, newDoc domain.Document) {
	ie.mu.RLock()
	coll := ie.indexes[collectionName]
	indexes := make([]*Index, 0, len(coll))
	for _, idx := range coll {
		indexes = append(indexes, idx)
	}
	ie.mu.RUnlock()

	for _, idx := range indexes {
		if oldDoc != nil {
			idx.remove(docID, oldDoc)
		}
		if newDoc != nil {
			idx.add(docID, newDoc)
		}
	}
}

// IndexDef is the persisted shape of an index's definition: its key
// sequence, not its postings, which are rebuilt from documents on load
// (spec §4.7, indexes are derived state).
type IndexDef struct {
	Name string        `msgpack:"name"`
	Keys []IndexKeyDef `msgpack:"keys"`
}

// IndexKeyDef is the persisted shape of one (path, direction) pair.
type IndexKeyDef struct {
	Path      string `msgpack:"path"`
	Direction int8   `msgpack:"direction"`
}

// ExportIndexes returns every index's definition, grouped by collection,
// for inclusion in a saved database file.
func (ie *IndexEngine) ExportIndexes() map[string][]IndexDef {
	ie.mu.RLock()
	defer ie.mu.RUnlock()
	out := make(map[string][]IndexDef, len(ie.indexes))
	for collName, coll := range ie.indexes {
		defs := make([]IndexDef, 0, len(coll))
		for name, idx := range coll {
			keys := make([]IndexKeyDef, len(idx.Def.Keys))
			for i, k := range idx.Def.Keys {
				keys[i] = IndexKeyDef{Path: k.Path, Direction: int8(k.Direction)}
			}
			defs = append(defs, IndexDef{Name: name, Keys: keys})
		}
		out[collName] = defs
	}
	return out
}

// ImportIndexes recreates index definitions loaded from a saved file.
// Postings are left empty; callers must follow with
// RebuildIndexForCollection once each collection's documents are loaded.
func (ie *IndexEngine) ImportIndexes(data map[string][]IndexDef) {
	ie.mu.Lock()
	defer ie.mu.Unlock()
	for collName, defs := range data {
		if ie.indexes[collName] == nil {
			ie.indexes[collName] = make(map[string]*Index)
		}
		for _, d := range defs {
			keys := make([]domain.IndexKey, len(d.Keys))
			for i, k := range d.Keys {
				keys[i] = domain.IndexKey{Path: k.Path, Direction: domain.Direction(k.Direction)}
			}
			def := domain.NewCompoundIndex(collName, keys...)
			def.ActualName = d.Name
			ie.indexes[collName][d.Name] = NewIndex(def)
		}
	}
}
