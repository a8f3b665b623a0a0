package domain

import "time"

// FieldMode classifies how a field should be indexed based on the sampled
// value sizes observed for it (spec §3).
type FieldMode int8

const (
	ModeNormal FieldMode = iota
	ModeHash
)

// FieldStatistics holds the per-field sampling results used to order and
// filter index keys (spec §3).
type FieldStatistics struct {
	Cardinality   int64
	Longest       int
	Mode          FieldMode
	ArrayPrefixes map[string]struct{}
}

// NewFieldStatistics creates an empty FieldStatistics.
func NewFieldStatistics() *FieldStatistics {
	return &FieldStatistics{ArrayPrefixes: make(map[string]struct{})}
}

// HasArrayPrefix reports whether the field lives inside any array.
func (fs *FieldStatistics) HasArrayPrefix() bool {
	return len(fs.ArrayPrefixes) > 0
}

// SynthesizeMissingFieldStatistics builds the placeholder statistics used
// when a field referenced by a query was never observed in the sample
// (spec §4.2 step 1, §7 "sampling statistic miss"): minimum cardinality,
// normal mode, longest 1, and the enclosing collection's known array
// prefixes that are ancestors of the path.
func SynthesizeMissingFieldStatistics(path string, minimumCardinality int64, knownArrayPrefixes map[string]struct{}) *FieldStatistics {
	fs := &FieldStatistics{
		Cardinality:   minimumCardinality,
		Longest:       1,
		Mode:          ModeNormal,
		ArrayPrefixes: make(map[string]struct{}),
	}
	for prefix := range knownArrayPrefixes {
		if isAncestorPath(prefix, path) {
			fs.ArrayPrefixes[prefix] = struct{}{}
		}
	}
	return fs
}

func isAncestorPath(prefix, path string) bool {
	if prefix == path {
		return false
	}
	if len(path) <= len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix && path[len(prefix)] == '.'
}

// CollectionStatistics is the per-collection sampling result: field
// statistics plus the set of paths known to traverse an array (spec §3).
type CollectionStatistics struct {
	Fields             map[string]*FieldStatistics
	KnownArrayPrefixes map[string]struct{}
	LastSampleTime     time.Time
	SampleCount        int64
}

// NewCollectionStatistics creates an empty CollectionStatistics.
func NewCollectionStatistics() *CollectionStatistics {
	return &CollectionStatistics{
		Fields:             make(map[string]*FieldStatistics),
		KnownArrayPrefixes: make(map[string]struct{}),
	}
}

// Fresh reports whether the statistics were sampled within interval of now
// (spec §3 invariant: lastSampleTime age < cardinalityUpdateInterval).
func (cs *CollectionStatistics) Fresh(now time.Time, interval time.Duration) bool {
	if cs == nil || cs.LastSampleTime.IsZero() {
		return false
	}
	return now.Sub(cs.LastSampleTime) < interval
}

// IndexPositionStatistics is the reduction data recorded at one prefix
// length of a compound index (spec §3).
type IndexPositionStatistics struct {
	Path                   string
	CurrentAverageDistinct float64
	LastAverageDistinct    float64
	Reduction              float64
}

// IndexStatistics is the per-index prefix-length statistics used to drive
// field reduction (spec §3, §4.4).
type IndexStatistics struct {
	Positions      []IndexPositionStatistics
	LastSampleTime time.Time
	TotalSampled   int64
}

// Fresh reports whether the index statistics were sampled within interval.
func (is *IndexStatistics) Fresh(now time.Time, interval time.Duration) bool {
	if is == nil || is.LastSampleTime.IsZero() {
		return false
	}
	return now.Sub(is.LastSampleTime) < interval
}

// ReductionAt returns the reduction value at prefix length k (1-indexed,
// matching the index's key order), or false if not yet sampled.
func (is *IndexStatistics) ReductionAt(k int) (float64, bool) {
	if is == nil || k < 1 || k > len(is.Positions) {
		return 0, false
	}
	return is.Positions[k-1].Reduction, true
}
