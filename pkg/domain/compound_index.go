package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// IndexOwnerPrefix marks a compound index as owned by the advisor: only
// indexes whose canonical name carries this prefix may ever be dropped or
// altered by the engine (spec §3, "ownership marker").
const IndexOwnerPrefix = "auto_"

// IndexKey is a single (path, direction) pair within a CompoundIndex.
type IndexKey struct {
	Path      string
	Direction Direction
}

// CompoundIndex is an ordered sequence of index keys bound to a collection.
// Two indexes are the same iff their key sequences are pointwise equal.
type CompoundIndex struct {
	Namespace string // the collection name
	Keys      []IndexKey

	// ActualName is the name this index actually carries in the database,
	// populated only when the index was discovered by listing existing
	// indexes rather than recommended by the engine. It may differ from
	// Name() (e.g. a user-created "user_email_unique"). Ownership
	// decisions (spec §3, §4.5) are made against ActualName, never
	// against the recomputed canonical name.
	ActualName string
}

// NewCompoundIndex builds a CompoundIndex from a namespace and ordered keys.
func NewCompoundIndex(namespace string, keys ...IndexKey) *CompoundIndex {
	cp := make([]IndexKey, len(keys))
	copy(cp, keys)
	return &CompoundIndex{Namespace: namespace, Keys: cp}
}

// EffectiveName returns ActualName when the index was discovered in the
// database, otherwise the canonical auto_ name it would be created under.
func (ci *CompoundIndex) EffectiveName() string {
	if ci.ActualName != "" {
		return ci.ActualName
	}
	return ci.Name()
}

// Paths returns the ordered field paths of the index, ignoring direction.
func (ci *CompoundIndex) Paths() []string {
	paths := make([]string, len(ci.Keys))
	for i, k := range ci.Keys {
		paths[i] = k.Path
	}
	return paths
}

// Len returns the number of keys in the index.
func (ci *CompoundIndex) Len() int { return len(ci.Keys) }

// serializedSequence renders the key sequence into a canonical, order
// sensitive string used both for the sha256 name and for equality/prefix
// comparisons.
func (ci *CompoundIndex) serializedSequence() string {
	var b strings.Builder
	b.WriteString(ci.Namespace)
	for _, k := range ci.Keys {
		b.WriteByte('|')
		b.WriteString(k.Path)
		b.WriteByte(':')
		b.WriteString(k.Direction.String())
	}
	return b.String()
}

// Name returns the canonical engine-owned index name: "auto_" + sha256 of
// the serialized key sequence (spec §3).
func (ci *CompoundIndex) Name() string {
	sum := sha256.Sum256([]byte(ci.serializedSequence()))
	return IndexOwnerPrefix + hex.EncodeToString(sum[:])
}

// Key returns the order-sensitive serialized key sequence used to compare
// indexes for identity without hashing (e.g. QuerySet reduction's
// canonicalization and dedup maps).
func (ci *CompoundIndex) Key() string { return ci.serializedSequence() }

// Equal reports whether two indexes have pointwise-equal key sequences on
// the same namespace.
func (ci *CompoundIndex) Equal(other *CompoundIndex) bool {
	if other == nil {
		return false
	}
	return ci.serializedSequence() == other.serializedSequence()
}

// IsIndexPrefixOf reports whether ci is a strict index-prefix of other: ci's
// sequence equals the first len(ci.Keys) entries of other's sequence, and
// ci is strictly shorter.
func (ci *CompoundIndex) IsIndexPrefixOf(other *CompoundIndex) bool {
	if other == nil || ci.Namespace != other.Namespace {
		return false
	}
	if len(ci.Keys) >= len(other.Keys) {
		return false
	}
	for i, k := range ci.Keys {
		if k != other.Keys[i] {
			return false
		}
	}
	return true
}

// IsPrimaryKeyOnly reports whether this index is solely the collection's
// primary key field, which the engine never emits as a create/drop action.
func (ci *CompoundIndex) IsPrimaryKeyOnly(primaryKeyPath string) bool {
	return len(ci.Keys) == 1 && ci.Keys[0].Path == primaryKeyPath
}

// IsOwned reports whether a canonical index name belongs to the advisor.
func IsOwned(name string) bool {
	return strings.HasPrefix(name, IndexOwnerPrefix)
}

// Clone returns a deep copy of the index.
func (ci *CompoundIndex) Clone() *CompoundIndex {
	return NewCompoundIndex(ci.Namespace, ci.Keys...)
}

func (ci *CompoundIndex) String() string {
	var b strings.Builder
	b.WriteString(ci.Namespace)
	b.WriteString(" {")
	for i, k := range ci.Keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k.Path)
		b.WriteByte(':')
		b.WriteString(k.Direction.String())
	}
	b.WriteByte('}')
	return b.String()
}
