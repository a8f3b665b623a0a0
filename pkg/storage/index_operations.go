package storage

import (
	"github.com/autoindex/idxadvisor/pkg/domain"
	"github.com/autoindex/idxadvisor/pkg/indexing"
)

// CreateIndex creates a single-field ascending index on fieldName, the
// shape manual API callers ask for. Compound indexes recommended by the
// advisor go through CreateCompoundIndex (see pkg/storesource), not
// through this convenience wrapper.
func (se *StorageEngine) CreateIndex(collName, fieldName string) error {
	se.mu.Lock()
	collection, err := se.getCollectionInternal(collName)
	se.mu.Unlock()
	if err != nil {
		return err
	}

	idx := domain.NewCompoundIndex(collName, domain.IndexKey{Path: fieldName, Direction: domain.Ascending})
	if err := se.indexEngine.CreateIndex(collName, idx); err != nil {
		return err
	}
	return se.indexEngine.BuildIndexForCollection(collName, idx.EffectiveName(), collection)
}

// CreateCompoundIndex creates idx as given, without reshaping it into a
// single-field lookup. Used by the index advisor's storage adapter to
// install its recommended compound and hashed indexes.
func (se *StorageEngine) CreateCompoundIndex(collName string, idx *domain.CompoundIndex) error {
	se.mu.Lock()
	collection, err := se.getCollectionInternal(collName)
	se.mu.Unlock()
	if err != nil {
		return err
	}

	if err := se.indexEngine.CreateIndex(collName, idx); err != nil {
		return err
	}
	return se.indexEngine.BuildIndexForCollection(collName, idx.EffectiveName(), collection)
}

// DropIndex removes the named index from a collection.
func (se *StorageEngine) DropIndex(collName, name string) error {
	return se.indexEngine.DropIndex(collName, name)
}

// FindByIndex resolves documents matching a single-field equality lookup
// through the index engine.
func (se *StorageEngine) FindByIndex(collName, fieldName string, value interface{}) ([]domain.Document, error) {
	se.mu.RLock()
	collection, err := se.getCollectionInternal(collName)
	se.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	idx := domain.NewCompoundIndex(collName, domain.IndexKey{Path: fieldName, Direction: domain.Ascending})
	ids, err := se.indexEngine.FindByIndex(collName, idx, []interface{}{value})
	if err != nil {
		return nil, err
	}
	var results []domain.Document
	for _, id := range ids {
		if doc, ok := collection.Documents[id]; ok {
			results = append(results, doc)
		}
	}
	return results, nil
}

// GetIndexes returns every index currently defined on a collection.
func (se *StorageEngine) GetIndexes(collName string) ([]*domain.CompoundIndex, error) {
	return se.indexEngine.GetIndexes(collName)
}

// UpdateIndex rebuilds the named index for a collection from scratch.
func (se *StorageEngine) UpdateIndex(collName, name string) error {
	se.mu.RLock()
	collection, err := se.getCollectionInternal(collName)
	se.mu.RUnlock()
	if err != nil {
		return err
	}
	return se.indexEngine.BuildIndexForCollection(collName, name, collection)
}

// getIndex returns the single-field index on fieldName, if one exists,
// for use by the query fast path in optimizeWithIndexes.
func (se *StorageEngine) getIndex(collName, fieldName string) (*indexing.Index, bool) {
	idx := domain.NewCompoundIndex(collName, domain.IndexKey{Path: fieldName, Direction: domain.Ascending})
	return se.indexEngine.GetIndex(collName, idx.EffectiveName())
}

// updateIndexes updates all indexes for a collection when a document changes
func (se *StorageEngine) updateIndexes(collName, docID string, oldDoc, newDoc domain.Document) {
	se.indexEngine.UpdateIndexForDocument(collName, docID, oldDoc, newDoc)
}
