package domain

import (
	"sort"
	"strings"
	"time"
)

// PrimaryKeyPath is the field path treated as the collection's primary key;
// a profile whose only referenced field is this path is discarded (spec
// §4.1), and an index made of only this path is never recommended for
// create/drop (spec §4.5).
const PrimaryKeyPath = "_id"

// Source identifies where a query profile came from (spec §3, carried via
// the $comment convention of spec §4.1).
type Source struct {
	Source  string
	Version string
}

// SortKey is one ordered (path, direction) pair of a profile's sort spec.
type SortKey struct {
	Path      string
	Direction Direction
}

// QueryProfile is the canonical triple derived from an observed query:
// exact-match fields, ordered sort keys with direction, and range/
// multi-value fields (spec §3).
type QueryProfile struct {
	Namespace string
	Exact     *FieldSet
	Sort      []SortKey
	Range     *FieldSet

	UsageCount    int64
	LastQueryTime time.Time
	Sources       []Source

	// Candidates is the set of compound indexes currently proposed to
	// serve this profile, populated by the profile optimizer and mutated
	// in place by QuerySet reduction (spec §4.4, §9 "cyclic reference").
	Candidates []*CompoundIndex
}

// NewQueryProfile creates an empty profile for a namespace.
func NewQueryProfile(namespace string) *QueryProfile {
	return &QueryProfile{
		Namespace: namespace,
		Exact:     NewFieldSet(),
		Range:     NewFieldSet(),
	}
}

// Fields returns every field path referenced anywhere in the profile.
func (p *QueryProfile) Fields() []string {
	seen := make(map[string]struct{})
	for _, f := range p.Exact.Ordered() {
		seen[f] = struct{}{}
	}
	for _, f := range p.Range.Ordered() {
		seen[f] = struct{}{}
	}
	for _, sk := range p.Sort {
		seen[sk.Path] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// IsEmpty reports whether the profile references no fields, or references
// only the primary key (spec §4.1: "Profiles with empty field coverage, or
// whose only field is the primary key, are discarded").
func (p *QueryProfile) IsEmpty() bool {
	fields := p.Fields()
	if len(fields) == 0 {
		return true
	}
	return len(fields) == 1 && fields[0] == PrimaryKeyPath
}

// IsSortKey reports whether path is one of the profile's sort keys; used
// to enforce sort-field immunity during field reduction (spec §4.4,
// §8 property 7).
func (p *QueryProfile) IsSortKey(path string) bool {
	for _, sk := range p.Sort {
		if sk.Path == path {
			return true
		}
	}
	return false
}

// equivalenceKey returns the string two profiles must share to be
// considered equivalent for deduplication purposes (spec §3): same
// namespace, same exact set, same sort keys with the same direction on
// each, same range set.
func (p *QueryProfile) equivalenceKey() string {
	var b strings.Builder
	b.WriteString(p.Namespace)
	b.WriteString("|E:")
	b.WriteString(strings.Join(p.Exact.Sorted(), ","))
	b.WriteString("|S:")
	for _, sk := range p.Sort {
		b.WriteString(sk.Path)
		b.WriteByte(':')
		b.WriteString(sk.Direction.String())
		b.WriteByte(',')
	}
	b.WriteString("|R:")
	b.WriteString(strings.Join(p.Range.Sorted(), ","))
	return b.String()
}

// EquivalenceKey exposes equivalenceKey for callers (e.g. QuerySet) that
// need to key profiles by the spec's equivalence relation.
func (p *QueryProfile) EquivalenceKey() string { return p.equivalenceKey() }

// Equivalent reports whether p and other satisfy the spec's equivalence
// relation (spec §3, §8 property 2).
func (p *QueryProfile) Equivalent(other *QueryProfile) bool {
	return p.equivalenceKey() == other.equivalenceKey()
}

// MergeObservation folds a re-observation of an equivalent profile into p:
// usageCount accumulates, lastQueryTime advances to the later timestamp,
// and sources are unioned (spec §3).
func (p *QueryProfile) MergeObservation(other *QueryProfile) {
	p.UsageCount += other.UsageCount
	if other.LastQueryTime.After(p.LastQueryTime) {
		p.LastQueryTime = other.LastQueryTime
	}
	for _, src := range other.Sources {
		if !p.hasSource(src) {
			p.Sources = append(p.Sources, src)
		}
	}
}

func (p *QueryProfile) hasSource(src Source) bool {
	for _, s := range p.Sources {
		if s == src {
			return true
		}
	}
	return false
}

// IsStale reports whether the profile hasn't been observed within
// recentQueriesOnlyDays (spec §3 lifecycle); a non-positive days value
// disables the check (sentinel -1 = disabled, per spec §6).
func (p *QueryProfile) IsStale(now time.Time, recentQueriesOnlyDays int) bool {
	if recentQueriesOnlyDays <= 0 {
		return false
	}
	cutoff := now.AddDate(0, 0, -recentQueriesOnlyDays)
	return p.LastQueryTime.Before(cutoff)
}
