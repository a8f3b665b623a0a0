// Package profile derives naive and statistics-optimized compound indexes
// from a single QueryProfile.
package profile

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/autoindex/idxadvisor/pkg/domain"
)

// slot is one field's statistics-bearing position within a profile while
// the optimizer derives its compound indexes (spec §4.2).
type slot struct {
	path      string
	direction domain.Direction
	stats     *domain.FieldStatistics
}

// NaiveIndex builds the naive fallback index: exact fields, then sort
// fields, then range fields, with no statistics consulted (spec §4.2).
func NaiveIndex(p *domain.QueryProfile) *domain.CompoundIndex {
	var keys []domain.IndexKey
	for _, f := range p.Exact.Ordered() {
		keys = append(keys, domain.IndexKey{Path: f, Direction: domain.Ascending})
	}
	for _, sk := range p.Sort {
		keys = append(keys, domain.IndexKey{Path: sk.Path, Direction: sk.Direction})
	}
	for _, f := range p.Range.Ordered() {
		keys = append(keys, domain.IndexKey{Path: f, Direction: domain.Ascending})
	}
	return domain.NewCompoundIndex(p.Namespace, keys...)
}

// Optimize derives the optimized compound index (or indexes, split across
// array prefixes) plus any separate hashed single-field indexes for a
// profile, given fresh CollectionStatistics (spec §4.2 steps 1-7).
func Optimize(p *domain.QueryProfile, stats *domain.CollectionStatistics, cfg domain.Config) (compounds []*domain.CompoundIndex, hashedIndexes []*domain.CompoundIndex) {
	exact := resolveSlots(p.Exact.Ordered(), domain.Ascending, stats, cfg)
	rng := resolveSlots(p.Range.Ordered(), domain.Ascending, stats, cfg)
	sortSlots := resolveSortSlots(p.Sort, stats, cfg)

	// Step 2: exact descending cardinality, range ascending, both stable
	// so ties preserve the profile's original field order.
	sort.SliceStable(exact, func(i, j int) bool { return exact[i].stats.Cardinality > exact[j].stats.Cardinality })
	sort.SliceStable(rng, func(i, j int) bool { return rng[i].stats.Cardinality < rng[j].stats.Cardinality })

	// Step 3: drop low-cardinality exact/range fields; revert both if the
	// total coverage (including sort fields, which are never dropped)
	// would become empty.
	droppedExact := dropLowCardinality(exact, cfg.MinimumCardinality)
	droppedRange := dropLowCardinality(rng, cfg.MinimumCardinality)
	if len(droppedExact)+len(sortSlots)+len(droppedRange) == 0 {
		droppedExact, droppedRange = exact, rng
	}

	// Step 4: split hash-mode fields into separate single-field hashed
	// indexes.
	nonHashExact, hashFromExact := splitHash(p.Namespace, droppedExact)
	nonHashRange, hashFromRange := splitHash(p.Namespace, droppedRange)
	nonHashSort, hashFromSort := splitHash(p.Namespace, sortSlots)
	hashedIndexes = append(hashedIndexes, hashFromExact...)
	hashedIndexes = append(hashedIndexes, hashFromRange...)
	hashedIndexes = append(hashedIndexes, hashFromSort...)

	// Step 6: sort-direction canonicalization.
	nonHashSort = canonicalizeSort(nonHashSort)

	// Step 5: parallel-array split.
	prefixes := unionArrayPrefixes(nonHashExact, nonHashSort, nonHashRange)
	if len(prefixes) < 2 {
		return []*domain.CompoundIndex{buildCompound(p.Namespace, nonHashExact, nonHashSort, nonHashRange)}, hashedIndexes
	}

	ordered := make([]string, 0, len(prefixes))
	for prefix := range prefixes {
		ordered = append(ordered, prefix)
	}
	sort.Strings(ordered)
	for _, prefix := range ordered {
		compounds = append(compounds, buildCompound(
			p.Namespace,
			filterByPrefix(nonHashExact, prefix),
			filterByPrefix(nonHashSort, prefix),
			filterByPrefix(nonHashRange, prefix),
		))
	}
	return compounds, hashedIndexes
}

func resolveSlots(fields []string, direction domain.Direction, stats *domain.CollectionStatistics, cfg domain.Config) []slot {
	out := make([]slot, 0, len(fields))
	for _, f := range fields {
		out = append(out, slot{path: f, direction: direction, stats: resolveFieldStatistics(f, stats, cfg)})
	}
	return out
}

func resolveSortSlots(sortKeys []domain.SortKey, stats *domain.CollectionStatistics, cfg domain.Config) []slot {
	out := make([]slot, 0, len(sortKeys))
	for _, sk := range sortKeys {
		out = append(out, slot{path: sk.Path, direction: sk.Direction, stats: resolveFieldStatistics(sk.Path, stats, cfg)})
	}
	return out
}

// resolveFieldStatistics looks up a field's sampled statistics, or
// synthesizes a minimum-cardinality placeholder when the field was never
// observed (spec §4.2 step 1, §7 "sampling statistic miss").
func resolveFieldStatistics(path string, stats *domain.CollectionStatistics, cfg domain.Config) *domain.FieldStatistics {
	if stats != nil {
		if fs, ok := stats.Fields[path]; ok {
			return fs
		}
	}
	var known map[string]struct{}
	if stats != nil {
		known = stats.KnownArrayPrefixes
	}
	log.Warn().Str("field", path).Msg("field statistics missing, synthesizing minimum-cardinality placeholder")
	return domain.SynthesizeMissingFieldStatistics(path, cfg.MinimumCardinality, known)
}

func dropLowCardinality(slots []slot, minimumCardinality int64) []slot {
	out := make([]slot, 0, len(slots))
	for _, s := range slots {
		if s.stats.Cardinality >= minimumCardinality {
			out = append(out, s)
		}
	}
	return out
}

func splitHash(namespace string, slots []slot) (nonHash []slot, hashed []*domain.CompoundIndex) {
	for _, s := range slots {
		if s.stats.Mode == domain.ModeHash {
			hashed = append(hashed, domain.NewCompoundIndex(namespace, domain.IndexKey{Path: s.path, Direction: domain.Hashed}))
			continue
		}
		nonHash = append(nonHash, s)
	}
	return nonHash, hashed
}

// canonicalizeSort multiplies every sort direction by the sign of the
// first sort key's direction, guaranteeing the first key is always +1
// (spec §4.2 step 6, §8 property 4).
func canonicalizeSort(slots []slot) []slot {
	if len(slots) == 0 || slots[0].direction.Sign() >= 0 {
		return slots
	}
	out := make([]slot, len(slots))
	for i, s := range slots {
		d := s.direction
		switch d {
		case domain.Ascending:
			d = domain.Descending
		case domain.Descending:
			d = domain.Ascending
		}
		out[i] = slot{path: s.path, direction: d, stats: s.stats}
	}
	return out
}

func unionArrayPrefixes(groups ...[]slot) map[string]struct{} {
	out := map[string]struct{}{}
	for _, group := range groups {
		for _, s := range group {
			for prefix := range s.stats.ArrayPrefixes {
				out[prefix] = struct{}{}
			}
		}
	}
	return out
}

func filterByPrefix(slots []slot, prefix string) []slot {
	var out []slot
	for _, s := range slots {
		if len(s.stats.ArrayPrefixes) == 0 {
			out = append(out, s)
			continue
		}
		if _, ok := s.stats.ArrayPrefixes[prefix]; ok {
			out = append(out, s)
		}
	}
	return out
}

func buildCompound(namespace string, exact, sortSlots, rng []slot) *domain.CompoundIndex {
	keys := make([]domain.IndexKey, 0, len(exact)+len(sortSlots)+len(rng))
	for _, s := range exact {
		keys = append(keys, domain.IndexKey{Path: s.path, Direction: s.direction})
	}
	for _, s := range sortSlots {
		keys = append(keys, domain.IndexKey{Path: s.path, Direction: s.direction})
	}
	for _, s := range rng {
		keys = append(keys, domain.IndexKey{Path: s.path, Direction: s.direction})
	}
	return domain.NewCompoundIndex(namespace, keys...)
}
