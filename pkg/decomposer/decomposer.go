// Package decomposer turns an observed query predicate and sort into the
// canonical QueryProfile triples the rest of the advisor works from.
package decomposer

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/autoindex/idxadvisor/pkg/domain"
)

// rangeOperators place a field in a profile's range set (spec §4.1).
var rangeOperators = map[string]struct{}{
	"$lt": {}, "$lte": {}, "$gt": {}, "$gte": {},
	"$in": {}, "$nin": {}, "$ne": {}, "$neq": {},
	"$exists": {}, "$mod": {}, "$all": {}, "$regex": {}, "$size": {},
}

// ignoredOperators carry no field-coverage meaning.
var ignoredOperators = map[string]struct{}{
	"$options": {}, "$hint": {}, "$explain": {}, "$text": {}, "$comment": {},
}

// subprofile is the decomposer's working accumulator; sort and sources are
// attached only once subprofiles are finalized into QueryProfiles. Field
// order is preserved (not just membership) so the optimizer's stable
// cardinality sort has a deterministic starting order to break ties on
// (spec §4.2 step 2, §8 scenario S6).
type subprofile struct {
	exact *domain.FieldSet
	rng   *domain.FieldSet
}

func newSubprofile() *subprofile {
	return &subprofile{exact: domain.NewFieldSet(), rng: domain.NewFieldSet()}
}

func (s *subprofile) clone() *subprofile {
	return &subprofile{exact: s.exact.Clone(), rng: s.rng.Clone()}
}

func (s *subprofile) merge(other *subprofile) {
	for _, f := range other.exact.Ordered() {
		s.exact.Add(f)
	}
	for _, f := range other.rng.Ordered() {
		s.rng.Add(f)
	}
}

// Decompose walks predicate (and its attached sort) into the list of
// QueryProfiles it represents (spec §4.1). predicate is an ordered
// primitive.D (the mongo-driver's BSON document type) rather than a plain
// Go map, because the optimizer's cardinality-tie ordering (spec §4.2 step
// 2, §8 scenario S6) depends on the field declaration order a plain map
// cannot preserve. $or expansion multiplies subprofiles by cartesian
// product; an object $comment's {source, version} is recorded on every
// produced profile. Profiles with empty or primary-key-only field
// coverage are discarded.
func Decompose(namespace string, predicate primitive.D, sort []domain.SortKey) []*domain.QueryProfile {
	predicate = unwrapQueryWrapper(predicate)
	source := extractComment(predicate)
	subs := analyzeDocument(predicate, "")

	profiles := make([]*domain.QueryProfile, 0, len(subs))
	for _, s := range subs {
		p := domain.NewQueryProfile(namespace)
		for _, f := range s.exact.Ordered() {
			p.Exact.Add(f)
		}
		for _, f := range s.rng.Ordered() {
			p.Range.Add(f)
		}
		if len(sort) > 0 {
			p.Sort = append([]domain.SortKey(nil), sort...)
		}
		if source != nil {
			p.Sources = []domain.Source{*source}
		}
		if p.IsEmpty() {
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles
}

// unwrapQueryWrapper strips the profiler record's optional {$query: {...}}
// wrapper (spec §6 profile record shape) before decomposition.
func unwrapQueryWrapper(predicate primitive.D) primitive.D {
	for _, el := range predicate {
		if el.Key == "$query" {
			if inner, ok := asDocument(el.Value); ok {
				return inner
			}
		}
	}
	return predicate
}

func extractComment(predicate primitive.D) *domain.Source {
	for _, el := range predicate {
		if el.Key != "$comment" {
			continue
		}
		m, ok := asDocument(el.Value)
		if !ok {
			return nil
		}
		var src, ver string
		for _, f := range m {
			switch f.Key {
			case "source":
				src, _ = f.Value.(string)
			case "version":
				ver, _ = f.Value.(string)
			}
		}
		if src == "" && ver == "" {
			return nil
		}
		return &domain.Source{Source: src, Version: ver}
	}
	return nil
}

// asDocument normalizes a nested predicate value into an ordered document.
// primitive.D/primitive.M are accepted directly; a plain
// map[string]interface{} is accepted too but its keys are sorted
// alphabetically since a Go map carries no declaration order of its own.
func asDocument(v interface{}) (primitive.D, bool) {
	switch t := v.(type) {
	case primitive.D:
		return t, true
	case primitive.M:
		return mapToDoc(t), true
	case map[string]interface{}:
		return mapToDoc(t), true
	default:
		return nil, false
	}
}

func mapToDoc(m map[string]interface{}) primitive.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	doc := make(primitive.D, len(keys))
	for i, k := range keys {
		doc[i] = primitive.E{Key: k, Value: m[k]}
	}
	return doc
}

// asArray normalizes a $and/$or operand list into a plain slice.
func asArray(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case primitive.A:
		return []interface{}(t), true
	case []interface{}:
		return t, true
	default:
		return nil, false
	}
}

// analyzeDocument decomposes one predicate document (top-level query, an
// $and operand, an $or disjunct, or an $elemMatch subtree rooted at
// pathPrefix) into the disjunctive list of subprofiles it represents.
func analyzeDocument(doc primitive.D, pathPrefix string) []*subprofile {
	current := []*subprofile{newSubprofile()}

	for _, el := range doc {
		key, val := el.Key, el.Value
		switch key {
		case "$or":
			arr, ok := asArray(val)
			if !ok {
				continue
			}
			var expanded []*subprofile
			for _, c := range current {
				for _, disjunct := range arr {
					dm, ok := asDocument(disjunct)
					if !ok {
						continue
					}
					for _, sub := range analyzeDocument(dm, pathPrefix) {
						merged := c.clone()
						merged.merge(sub)
						expanded = append(expanded, merged)
					}
				}
			}
			current = expanded

		case "$and":
			arr, ok := asArray(val)
			if !ok {
				continue
			}
			for _, operand := range arr {
				om, ok := asDocument(operand)
				if !ok {
					continue
				}
				current = cartesianMerge(current, analyzeDocument(om, pathPrefix))
			}

		case "$comment", "$options", "$hint", "$explain", "$text":
			continue

		default:
			if strings.HasPrefix(key, "$") {
				log.Warn().Str("operator", key).Msg("unrecognized query operator, skipping")
				continue
			}
			fieldPath := pathPrefix + key
			current = analyzeFieldValue(fieldPath, val, current)
		}
	}
	return current
}

// analyzeFieldValue decomposes one field's condition. A primitive value (or
// a document with no $-operator keys) is an exact match; an operator
// document is ANDed key by key, with $not and $elemMatch recursing.
func analyzeFieldValue(fieldPath string, value interface{}, current []*subprofile) []*subprofile {
	m, isDoc := asDocument(value)
	if !isDoc || !hasOperatorKey(m) {
		for _, c := range current {
			c.exact.Add(fieldPath)
		}
		return current
	}

	result := current
	for _, el := range m {
		op, opVal := el.Key, el.Value
		switch op {
		case "$eq":
			for _, c := range result {
				c.exact.Add(fieldPath)
			}
		case "$not":
			result = analyzeFieldValue(fieldPath, opVal, result)
		case "$elemMatch":
			sub, ok := asDocument(opVal)
			if !ok {
				log.Warn().Str("field", fieldPath).Msg("$elemMatch value is not an object, skipping")
				continue
			}
			disjuncts := analyzeDocument(sub, fieldPath+".")
			result = cartesianMerge(result, disjuncts)
		default:
			if _, ok := rangeOperators[op]; ok {
				for _, c := range result {
					c.rng.Add(fieldPath)
				}
			} else if _, ok := ignoredOperators[op]; ok {
				// no-op
			} else if strings.HasPrefix(op, "$") {
				log.Warn().Str("operator", op).Str("field", fieldPath).Msg("unrecognized query operator, skipping")
			} else {
				// Nested object literal equality, e.g. {field: {sub: 1}}.
				for _, c := range result {
					c.exact.Add(fieldPath)
				}
			}
		}
	}
	return result
}

func hasOperatorKey(doc primitive.D) bool {
	for _, el := range doc {
		if strings.HasPrefix(el.Key, "$") {
			return true
		}
	}
	return false
}

// cartesianMerge combines two disjunctive subprofile lists into every
// pairwise merge, used wherever $and must be distributed across a nested
// $or (spec §4.1, "nested $or multiplies").
func cartesianMerge(a, b []*subprofile) []*subprofile {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make([]*subprofile, 0, len(a)*len(b))
	for _, x := range a {
		for _, y := range b {
			merged := x.clone()
			merged.merge(y)
			out = append(out, merged)
		}
	}
	return out
}
