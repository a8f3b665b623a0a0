// Package reconciler mechanically translates a recommended IndexSet plus
// the database's existing indexes into create/drop/keep actions (spec
// §4.5). The diff itself lives on domain.IndexSet; this package applies
// it against a domain.DataSource and reports the outcome.
package reconciler

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/autoindex/idxadvisor/pkg/domain"
)

// FailedCreate records an index whose creation the database refused.
type FailedCreate struct {
	Index *domain.CompoundIndex
	Err   error
}

// FailedDrop records an index whose drop the database refused.
type FailedDrop struct {
	Index *domain.CompoundIndex
	Err   error
}

// Result is the reconciliation outcome for one collection.
type Result struct {
	Namespace   string
	Created     []*domain.CompoundIndex
	Dropped     []*domain.CompoundIndex
	Kept        []*domain.CompoundIndex
	Failed      []FailedCreate
	FailedDrops []FailedDrop
}

// Reconciler applies a recommended/existing index diff against a
// DataSource.
type Reconciler struct {
	source domain.DataSource
}

// New creates a Reconciler over source.
func New(source domain.DataSource) *Reconciler {
	return &Reconciler{source: source}
}

// Reconcile diffs recommended against namespace's existing indexes (spec
// §4.5) and, unless cfg says otherwise, applies the create/drop actions.
// doChanges gates whether actions are applied at all; showChangesOnly
// computes and returns the diff without applying it, for dry-run
// reporting (spec §9). A create that fails with domain.ErrIndexTooLarge
// is recorded in Failed rather than aborting the rest of the plan; the
// caller (the engine) is responsible for the resulting hash-mode
// demotion side effect (spec §3, §7), since that requires collection
// statistics this package does not hold. A drop that fails is recorded
// in FailedDrops and likewise does not abort the plan.
func (r *Reconciler) Reconcile(namespace string, recommended *domain.IndexSet, doChanges, showChangesOnly bool) (*Result, error) {
	existingList, err := r.source.ListIndexes(namespace)
	if err != nil {
		return nil, fmt.Errorf("listing indexes for %s: %w", namespace, err)
	}
	existing := domain.NewIndexSet()
	for _, idx := range existingList {
		existing.Add(idx)
	}

	diff := recommended.Diff(existing, domain.PrimaryKeyPath)
	result := &Result{Namespace: namespace, Kept: diff.Keep}

	if !doChanges || showChangesOnly {
		result.Created = diff.Create
		result.Dropped = diff.Drop
		return result, nil
	}

	for _, idx := range diff.Create {
		if err := r.source.CreateIndex(idx); err != nil {
			if errors.Is(err, domain.ErrIndexTooLarge) {
				result.Failed = append(result.Failed, FailedCreate{Index: idx, Err: err})
				continue
			}
			return result, fmt.Errorf("creating index %s on %s: %w", idx.Name(), namespace, err)
		}
		result.Created = append(result.Created, idx)
	}

	for _, idx := range diff.Drop {
		if err := r.source.DropIndex(namespace, idx.EffectiveName()); err != nil {
			log.Error().Err(err).Str("namespace", namespace).Str("index", idx.EffectiveName()).
				Msg("dropping index failed, continuing with remaining actions")
			result.FailedDrops = append(result.FailedDrops, FailedDrop{Index: idx, Err: err})
			continue
		}
		result.Dropped = append(result.Dropped, idx)
	}

	return result, nil
}
