// Package queryset owns the deduplicated set of observed query profiles
// and drives the iterative reduction/extension loop that turns them into
// a recommended IndexSet per collection (spec §4.4).
package queryset

import (
	"sort"
	"sync"
	"time"

	"github.com/autoindex/idxadvisor/pkg/decomposer"
	"github.com/autoindex/idxadvisor/pkg/domain"
	"github.com/autoindex/idxadvisor/pkg/profile"
	"github.com/autoindex/idxadvisor/pkg/sampler"
)

// QuerySet holds every distinct QueryProfile observed so far, plus the
// sampled statistics needed to recommend indexes for them.
type QuerySet struct {
	mu       sync.Mutex
	sampler  *sampler.Sampler
	profiles map[string]*domain.QueryProfile // equivalence key -> profile

	collStats  map[string]*domain.CollectionStatistics // namespace -> stats
	indexStats map[string]*domain.IndexStatistics       // index effective name -> stats
}

// New creates an empty QuerySet sampling through source.
func New(source domain.DataSource) *QuerySet {
	return &QuerySet{
		sampler:    sampler.New(source),
		profiles:   make(map[string]*domain.QueryProfile),
		collStats:  make(map[string]*domain.CollectionStatistics),
		indexStats: make(map[string]*domain.IndexStatistics),
	}
}

// Observe decomposes one profile record and folds the resulting profiles
// into the set, merging into any existing equivalent profile (spec §3,
// §4.1).
func (qs *QuerySet) Observe(record domain.ProfileRecord, now time.Time) {
	sortKeys := domain.SortKeysFromDoc(record.Sort)
	for _, p := range decomposer.Decompose(record.Namespace, record.Query, sortKeys) {
		p.UsageCount = 1
		p.LastQueryTime = now
		if len(record.Sort) > 0 {
			p.Sort = sortKeys
		}

		key := p.EquivalenceKey()
		qs.mu.Lock()
		if existing, ok := qs.profiles[key]; ok {
			existing.MergeObservation(p)
		} else {
			qs.profiles[key] = p
		}
		qs.mu.Unlock()
	}
}

// Profiles returns every live profile, for reporting.
func (qs *QuerySet) Profiles() []*domain.QueryProfile {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	out := make([]*domain.QueryProfile, 0, len(qs.profiles))
	for _, p := range qs.profiles {
		out = append(out, p)
	}
	return out
}

// IndexStatsFor returns the cached statistics for a named index, if any.
func (qs *QuerySet) IndexStatsFor(name string) (*domain.IndexStatistics, bool) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	st, ok := qs.indexStats[name]
	return st, ok
}

// CollectionStatsSnapshot returns a copy of the per-namespace collection
// statistics cache, for state persistence (spec §6 state document shape).
func (qs *QuerySet) CollectionStatsSnapshot() map[string]*domain.CollectionStatistics {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	out := make(map[string]*domain.CollectionStatistics, len(qs.collStats))
	for k, v := range qs.collStats {
		out[k] = v
	}
	return out
}

// IndexStatsSnapshot returns a copy of the per-index statistics cache.
func (qs *QuerySet) IndexStatsSnapshot() map[string]*domain.IndexStatistics {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	out := make(map[string]*domain.IndexStatistics, len(qs.indexStats))
	for k, v := range qs.indexStats {
		out[k] = v
	}
	return out
}

// Restore replaces the QuerySet's live state with profiles and statistics
// loaded from a persisted state document (spec §6, startup recovery).
func (qs *QuerySet) Restore(profiles []*domain.QueryProfile, collStats map[string]*domain.CollectionStatistics, indexStats map[string]*domain.IndexStatistics) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	for _, p := range profiles {
		qs.profiles[p.EquivalenceKey()] = p
	}
	for k, v := range collStats {
		qs.collStats[k] = v
	}
	for k, v := range indexStats {
		qs.indexStats[k] = v
	}
}

// DemoteToHash forces the named field's cached statistics to hash mode,
// the side effect of an index-too-large create failure (spec §3, §7):
// "mark the longest field of that index as mode = hash so the next
// optimization pass avoids the combination".
func (qs *QuerySet) DemoteToHash(namespace, path string) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	stats := qs.collStats[namespace]
	if stats == nil {
		return
	}
	fs, ok := stats.Fields[path]
	if !ok {
		return
	}
	fs.Mode = domain.ModeHash
}

// Synchronize runs one full reduction/extension cycle: prune stale
// profiles, ensure fresh collection statistics, optimize each profile,
// reduce the resulting candidates to a fixed point, simplify by sampling,
// extend, and return the recommended IndexSet per namespace (spec §4.2-
// §4.4). This recomputes recommendations from the live profile set and
// current statistics on every call; reduction/extension convergence is
// local to a single call, not carried across calls.
func (qs *QuerySet) Synchronize(cfg domain.Config, now time.Time) (map[string]*domain.IndexSet, error) {
	byNamespace := qs.liveProfilesByNamespace(cfg, now)

	result := make(map[string]*domain.IndexSet, len(byNamespace))
	for namespace, profiles := range byNamespace {
		if err := qs.refreshCollectionStats(namespace, cfg, now); err != nil {
			return nil, err
		}
		stats := qs.collectionStats(namespace)

		for _, p := range profiles {
			if stats == nil || stats.SampleCount == 0 {
				p.Candidates = []*domain.CompoundIndex{profile.NaiveIndex(p)}
				continue
			}
			compounds, hashed := profile.Optimize(p, stats, cfg)
			p.Candidates = append(compounds, hashed...)
		}

		reduceIndexes(profiles)
		if err := qs.simplify(namespace, profiles, cfg); err != nil {
			return nil, err
		}
		if err := qs.extend(namespace, profiles, cfg); err != nil {
			return nil, err
		}

		final := collectCandidates(profiles)
		if finalStats, err := qs.sampler.SampleIndexes(namespace, final, cfg.IndexSampleSize(), cfg.SampleSpeed); err == nil {
			for name, st := range finalStats {
				qs.setIndexStats(name, st)
			}
		}

		set := domain.NewIndexSet()
		for _, idx := range final {
			set.Add(idx)
		}
		result[namespace] = set
	}
	return result, nil
}

func (qs *QuerySet) liveProfilesByNamespace(cfg domain.Config, now time.Time) map[string][]*domain.QueryProfile {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	byNamespace := make(map[string][]*domain.QueryProfile)
	for key, p := range qs.profiles {
		if p.IsStale(now, cfg.RecentQueriesOnlyDays) {
			delete(qs.profiles, key)
			continue
		}
		if p.UsageCount < cfg.MinimumQueryCount {
			continue
		}
		byNamespace[p.Namespace] = append(byNamespace[p.Namespace], p)
	}
	return byNamespace
}

func (qs *QuerySet) refreshCollectionStats(namespace string, cfg domain.Config, now time.Time) error {
	qs.mu.Lock()
	fresh := qs.collStats[namespace].Fresh(now, cfg.CardinalityUpdateInterval)
	qs.mu.Unlock()
	if fresh {
		return nil
	}

	stats, err := qs.sampler.SampleCollection(namespace, cfg.CollectionSampleSize(), cfg.SampleSpeed, cfg.LongestIndexable)
	if err != nil {
		return err
	}
	qs.mu.Lock()
	qs.collStats[namespace] = stats
	qs.mu.Unlock()
	return nil
}

func (qs *QuerySet) collectionStats(namespace string) *domain.CollectionStatistics {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	return qs.collStats[namespace]
}

// FieldStats returns the cached field statistics for one path, if known.
func (qs *QuerySet) FieldStats(namespace, path string) *domain.FieldStatistics {
	return qs.fieldStats(namespace, path)
}

func (qs *QuerySet) fieldStats(namespace, path string) *domain.FieldStatistics {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	stats := qs.collStats[namespace]
	if stats == nil {
		return nil
	}
	return stats.Fields[path]
}

func (qs *QuerySet) setIndexStats(name string, fresh *domain.IndexStatistics) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	if prev, ok := qs.indexStats[name]; ok {
		for i := range fresh.Positions {
			if i < len(prev.Positions) {
				fresh.Positions[i].LastAverageDistinct = prev.Positions[i].CurrentAverageDistinct
			}
		}
	}
	qs.indexStats[name] = fresh
}

// reduceIndexes performs prefix absorption and canonicalization over one
// collection's profiles until a fixed point (spec §4.4 "reduceIndexes").
// Invariants at the fixed point: no candidate is an index-prefix of
// another candidate anywhere in the set; duplicate indexes across
// profiles share a single object; every remaining candidate is reachable
// from profilesServing.
func reduceIndexes(profiles []*domain.QueryProfile) {
	for {
		registry := domain.NewIndexSet()
		for _, p := range profiles {
			for _, idx := range p.Candidates {
				registry.Add(idx)
			}
		}
		all := registry.All()

		changed := false
		for _, p := range profiles {
			before := candidateKeySet(p.Candidates)

			newCandidates := make([]*domain.CompoundIndex, 0, len(p.Candidates))
			seen := make(map[string]struct{}, len(p.Candidates))
			for _, idx := range p.Candidates {
				canon := registry.Add(idx)

				var absorbers []*domain.CompoundIndex
				for _, other := range all {
					if canon.Key() == other.Key() {
						continue
					}
					if canon.IsIndexPrefixOf(other) {
						absorbers = append(absorbers, other)
					}
				}

				replacements := absorbers
				if len(replacements) == 0 {
					replacements = []*domain.CompoundIndex{canon}
				}
				for _, r := range replacements {
					if _, ok := seen[r.Key()]; ok {
						continue
					}
					seen[r.Key()] = struct{}{}
					newCandidates = append(newCandidates, r)
				}
			}

			p.Candidates = newCandidates
			if !before.equal(candidateKeySet(newCandidates)) {
				changed = true
			}
		}

		if !changed {
			return
		}
	}
}

// simplify runs the field-reduction-by-sampling outer loop for one
// collection's profiles until a full pass removes nothing (spec §4.4
// "simplify"). Only one field is removed per index per pass, since
// removing a field invalidates the remaining prefixes' statistics.
func (qs *QuerySet) simplify(namespace string, profiles []*domain.QueryProfile, cfg domain.Config) error {
	for {
		registry := domain.NewIndexSet()
		for _, p := range profiles {
			for _, idx := range p.Candidates {
				registry.Add(idx)
			}
		}
		indexes := registry.All()
		if len(indexes) == 0 {
			return nil
		}

		stats, err := qs.sampler.SampleIndexes(namespace, indexes, cfg.IndexSampleSize(), cfg.SampleSpeed)
		if err != nil {
			return err
		}
		for name, st := range stats {
			qs.setIndexStats(name, st)
		}

		replacements := make(map[string]*domain.CompoundIndex)
		for _, idx := range indexes {
			if idx.Len() <= 1 {
				continue
			}
			st := stats[idx.EffectiveName()]
			if st == nil {
				continue
			}

			immune := immuneSortFields(profilesServing(profiles, idx))

			removeAt := -1
			for i := idx.Len() - 1; i >= 0; i-- {
				path := idx.Keys[i].Path
				if _, ok := immune[path]; ok {
					continue
				}
				if i >= len(st.Positions) {
					continue
				}
				if st.Positions[i].Reduction > cfg.MinimumReduction {
					removeAt = i
					break
				}
			}
			if removeAt < 0 {
				continue
			}

			newKeys := make([]domain.IndexKey, 0, idx.Len()-1)
			newKeys = append(newKeys, idx.Keys[:removeAt]...)
			newKeys = append(newKeys, idx.Keys[removeAt+1:]...)
			replacements[idx.Key()] = domain.NewCompoundIndex(namespace, newKeys...)
		}

		if len(replacements) == 0 {
			return nil
		}

		for _, p := range profiles {
			for i, idx := range p.Candidates {
				if r, ok := replacements[idx.Key()]; ok {
					p.Candidates[i] = r
				}
			}
		}
		reduceIndexes(profiles)
	}
}

// extend appends vote-scored "free" fields to every final candidate index
// (spec §4.4 "extend"), when enabled.
func (qs *QuerySet) extend(namespace string, profiles []*domain.QueryProfile, cfg domain.Config) error {
	if !cfg.IndexExtension {
		return nil
	}

	registry := domain.NewIndexSet()
	for _, p := range profiles {
		for _, idx := range p.Candidates {
			registry.Add(idx)
		}
	}

	replacements := make(map[string]*domain.CompoundIndex)
	for _, idx := range registry.All() {
		serving := profilesServing(profiles, idx)
		extended := qs.extendOne(namespace, idx, serving)
		if extended.Key() != idx.Key() {
			replacements[idx.Key()] = extended
		}
	}
	if len(replacements) == 0 {
		return nil
	}
	for _, p := range profiles {
		for i, idx := range p.Candidates {
			if r, ok := replacements[idx.Key()]; ok {
				p.Candidates[i] = r
			}
		}
	}
	return nil
}

func (qs *QuerySet) extendOne(namespace string, idx *domain.CompoundIndex, serving []*domain.QueryProfile) *domain.CompoundIndex {
	current := idx
	remaining := serving

	for {
		existing := make(map[string]struct{}, current.Len())
		for _, k := range current.Keys {
			existing[k.Path] = struct{}{}
		}

		scores := make(map[string]int64)
		contributors := make(map[string][]*domain.QueryProfile)
		for _, p := range remaining {
			for _, f := range append(p.Exact.Ordered(), p.Range.Ordered()...) {
				if _, ok := existing[f]; ok {
					continue
				}
				if fs := qs.fieldStats(namespace, f); fs != nil && (fs.Mode == domain.ModeHash || fs.HasArrayPrefix()) {
					continue
				}
				scores[f] += p.UsageCount
				contributors[f] = append(contributors[f], p)
			}
		}
		if len(scores) == 0 {
			return current
		}

		candidates := make([]string, 0, len(scores))
		for f := range scores {
			candidates = append(candidates, f)
		}
		sort.Strings(candidates)

		winner := candidates[0]
		for _, f := range candidates[1:] {
			if scores[f] > scores[winner] {
				winner = f
			}
		}

		keys := append(append([]domain.IndexKey{}, current.Keys...), domain.IndexKey{Path: winner, Direction: domain.Ascending})
		current = domain.NewCompoundIndex(namespace, keys...)
		remaining = contributors[winner]
	}
}

func profilesServing(profiles []*domain.QueryProfile, idx *domain.CompoundIndex) []*domain.QueryProfile {
	var out []*domain.QueryProfile
	for _, p := range profiles {
		for _, c := range p.Candidates {
			if c.Key() == idx.Key() {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func immuneSortFields(profiles []*domain.QueryProfile) map[string]struct{} {
	out := make(map[string]struct{})
	for _, p := range profiles {
		for _, sk := range p.Sort {
			out[sk.Path] = struct{}{}
		}
	}
	return out
}

func collectCandidates(profiles []*domain.QueryProfile) []*domain.CompoundIndex {
	registry := domain.NewIndexSet()
	for _, p := range profiles {
		for _, idx := range p.Candidates {
			registry.Add(idx)
		}
	}
	return registry.All()
}

type keySet map[string]struct{}

func candidateKeySet(candidates []*domain.CompoundIndex) keySet {
	out := make(keySet, len(candidates))
	for _, c := range candidates {
		out[c.Key()] = struct{}{}
	}
	return out
}

func (a keySet) equal(b keySet) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
