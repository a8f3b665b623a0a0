package domain

// IndexSet is a deduplicated set of CompoundIndexes, keyed by canonical
// name so that two indexes with the same key sequence are always the same
// object once added (spec §9, "shared-object identity after reduction").
type IndexSet struct {
	byName map[string]*CompoundIndex
}

// NewIndexSet creates an empty IndexSet.
func NewIndexSet() *IndexSet {
	return &IndexSet{byName: make(map[string]*CompoundIndex)}
}

// Add inserts idx into the set, returning the canonical (possibly
// pre-existing) object for this key sequence. Sets are keyed by key
// sequence, not by stored name, since an existing index's ActualName may
// not be its canonical auto_ name (spec §4.5 "by canonical sequence
// equality").
func (s *IndexSet) Add(idx *CompoundIndex) *CompoundIndex {
	key := idx.serializedSequence()
	if existing, ok := s.byName[key]; ok {
		return existing
	}
	s.byName[key] = idx
	return idx
}

// Remove drops idx from the set by key sequence.
func (s *IndexSet) Remove(idx *CompoundIndex) {
	delete(s.byName, idx.serializedSequence())
}

// Get looks up an index by its canonical (auto_) name.
func (s *IndexSet) Get(name string) (*CompoundIndex, bool) {
	for _, idx := range s.byName {
		if idx.Name() == name {
			return idx, true
		}
	}
	return nil, false
}

// Contains reports whether an index with the same key sequence is present.
func (s *IndexSet) Contains(idx *CompoundIndex) bool {
	_, ok := s.byName[idx.serializedSequence()]
	return ok
}

// All returns every index in the set, order unspecified.
func (s *IndexSet) All() []*CompoundIndex {
	out := make([]*CompoundIndex, 0, len(s.byName))
	for _, idx := range s.byName {
		out = append(out, idx)
	}
	return out
}

// Len returns the number of indexes in the set.
func (s *IndexSet) Len() int { return len(s.byName) }

// ByCollection groups the set's indexes by namespace.
func (s *IndexSet) ByCollection() map[string][]*CompoundIndex {
	out := make(map[string][]*CompoundIndex)
	for _, idx := range s.byName {
		out[idx.Namespace] = append(out[idx.Namespace], idx)
	}
	return out
}

// IndexDiff is the three-way partition produced by comparing a recommended
// set against an existing set (spec §4.5).
type IndexDiff struct {
	Create []*CompoundIndex
	Drop   []*CompoundIndex
	Keep   []*CompoundIndex
}

// Diff computes {create, drop, keep} for a single collection: recommended
// is "this" set, existing is the database's actual indexes. Only names
// carrying IndexOwnerPrefix are ever placed in Drop (spec §3, §4.5, §8
// property 9). The primary-key-only index is excluded from both create and
// drop regardless of ownership.
func (recommended *IndexSet) Diff(existing *IndexSet, primaryKeyPath string) IndexDiff {
	var diff IndexDiff
	for _, idx := range recommended.All() {
		if idx.IsPrimaryKeyOnly(primaryKeyPath) {
			continue
		}
		if existing.Contains(idx) {
			diff.Keep = append(diff.Keep, idx)
		} else {
			diff.Create = append(diff.Create, idx)
		}
	}
	for _, idx := range existing.All() {
		if idx.IsPrimaryKeyOnly(primaryKeyPath) {
			continue
		}
		if recommended.Contains(idx) {
			continue // already counted as Keep above
		}
		if IsOwned(idx.EffectiveName()) {
			diff.Drop = append(diff.Drop, idx)
		} else {
			diff.Keep = append(diff.Keep, idx)
		}
	}
	return diff
}
