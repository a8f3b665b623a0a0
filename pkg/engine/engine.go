// Package engine orchestrates the advisor's components into the running
// process: it drains the observed-query stream, runs the periodic
// synchronization cycle (optimize → reduce → simplify → extend →
// reconcile), persists engine state, and applies the index-too-large
// hash-demotion side effect (spec §5, §7). Its wiring-and-lifecycle
// shape follows the teacher's pkg/server.Server.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autoindex/idxadvisor/internal/metrics"
	"github.com/autoindex/idxadvisor/pkg/domain"
	"github.com/autoindex/idxadvisor/pkg/queryset"
	"github.com/autoindex/idxadvisor/pkg/reconciler"
	"github.com/autoindex/idxadvisor/pkg/statepersist"
)

// FatalError wraps a condition that terminates the process (spec §7): a
// lost database connection, or any error the engine cannot recover from
// by logging and continuing. cmd/ checks for this type and exits
// non-zero.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// DefaultStateCollection is the reserved collection the engine's single
// state document lives in (spec §5, §6).
const DefaultStateCollection = "__idxadvisor_state"

// Engine ties a DataSource, a StatePersister, the QuerySet, and the
// Reconciler into the running advisor process.
type Engine struct {
	source          domain.DataSource
	state           domain.StatePersister
	stateCollection string

	qs         *queryset.QuerySet
	reconciler *reconciler.Reconciler
	cfg        domain.Config

	mu            sync.RWMutex
	syncMu        sync.Mutex
	recommended   map[string]*domain.IndexSet
	lastResults   map[string]*reconciler.Result
	stop          chan struct{}
	done          chan struct{}
}

// New creates an Engine. stateCollection is the reserved collection the
// state document lives in; pass DefaultStateCollection unless the
// deployment needs a different one.
func New(source domain.DataSource, state domain.StatePersister, cfg domain.Config, stateCollection string) *Engine {
	if stateCollection == "" {
		stateCollection = DefaultStateCollection
	}
	return &Engine{
		source:          source,
		state:           state,
		stateCollection: stateCollection,
		qs:              queryset.New(source),
		reconciler:      reconciler.New(source),
		cfg:             cfg,
		recommended:     make(map[string]*domain.IndexSet),
		lastResults:     make(map[string]*reconciler.Result),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Restore loads previously-persisted engine state, if any exists.
func (e *Engine) Restore() error {
	doc, ok, err := e.state.ReadState(e.stateCollection)
	if err != nil {
		return fmt.Errorf("reading persisted engine state: %w", err)
	}
	if !ok {
		return nil
	}
	profiles, collStats, indexStats, err := statepersist.Parse(doc)
	if err != nil {
		return fmt.Errorf("parsing persisted engine state: %w", err)
	}
	e.qs.Restore(profiles, collStats, indexStats)
	return nil
}

// Run drains the profile stream and runs the synchronization cycle on
// indexSynchronizationInterval, from the end of the previous cycle,
// until Stop is called (spec §5, "scheduling model"). Observed queries
// are processed in arrival order and never block on synchronization; a
// closed profile stream (database connection lost) is reported as a
// *FatalError, matching spec §7's "dropped database connection is
// fatal" rule.
func (e *Engine) Run() error {
	defer close(e.done)

	records := e.source.ProfileStream()
	var ticker *time.Ticker

	for {
		if ticker == nil {
			ticker = time.NewTicker(e.cfg.IndexSynchronizationInterval)
		}

		select {
		case <-e.stop:
			ticker.Stop()
			return nil

		case record, ok := <-records:
			if !ok {
				ticker.Stop()
				return &FatalError{Err: errors.New("profile stream closed, database connection likely lost")}
			}
			e.qs.Observe(record, time.Now())

		case <-ticker.C:
			ticker.Stop()
			ticker = nil
			if err := e.synchronize(); err != nil {
				var fatal *FatalError
				if errors.As(err, &fatal) {
					return err
				}
				log.Error().Err(err).Msg("synchronization cycle failed")
			}
		}
	}
}

// Stop signals Run to exit and waits for it to finish.
func (e *Engine) Stop() {
	close(e.stop)
	<-e.done
}

// TriggerSync runs one synchronization cycle immediately, out of band
// from the regular interval (spec §9, "manual sync trigger"). Safe to
// call concurrently with Run's own interval firing: synchronization
// cycles are serialized by syncMu.
func (e *Engine) TriggerSync() error {
	return e.synchronize()
}

// Profiles returns every live observed profile, for reporting.
func (e *Engine) Profiles() []*domain.QueryProfile {
	return e.qs.Profiles()
}

// Recommended returns the most recently computed recommended IndexSet per
// namespace, for the admin reporting surface (spec §9).
func (e *Engine) Recommended() map[string]*domain.IndexSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]*domain.IndexSet, len(e.recommended))
	for k, v := range e.recommended {
		out[k] = v
	}
	return out
}

// LastResult returns the most recent reconciliation result for namespace.
func (e *Engine) LastResult(namespace string) (*reconciler.Result, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.lastResults[namespace]
	return r, ok
}

// synchronize runs one full cycle: persist state against a consistent
// snapshot, recompute recommendations, reconcile, and apply the
// index-too-large hash-demotion side effect (spec §5 "ordering
// guarantees", §3/§7). New arrivals on the profile stream queue and are
// folded into the QuerySet by Run's own select loop, so they apply to
// the next cycle rather than this one. A state-persistence failure is
// unrecoverable (spec §7) and is reported as a *FatalError so Run exits
// instead of continuing on unpersisted state.
func (e *Engine) synchronize() error {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	start := time.Now()
	defer func() { metrics.SyncCycleDuration.Observe(time.Since(start).Seconds()) }()

	if err := e.persistState(); err != nil {
		metrics.SyncCyclesTotal.WithLabelValues("error").Inc()
		return &FatalError{Err: fmt.Errorf("persisting engine state: %w", err)}
	}

	recommended, err := e.qs.Synchronize(e.cfg, start)
	if err != nil {
		metrics.SyncCyclesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("computing recommendations: %w", err)
	}

	e.mu.Lock()
	e.recommended = recommended
	e.mu.Unlock()

	for namespace, indexSet := range recommended {
		metrics.RecommendedIndexesGauge.WithLabelValues(namespace).Set(float64(indexSet.Len()))

		result, err := e.reconciler.Reconcile(namespace, indexSet, e.cfg.DoChanges, e.cfg.ShowChangesOnly)
		if err != nil {
			log.Error().Err(err).Str("namespace", namespace).Msg("reconciliation failed")
			continue
		}

		e.mu.Lock()
		e.lastResults[namespace] = result
		e.mu.Unlock()

		metrics.IndexesReconciledTotal.WithLabelValues(namespace, "created").Add(float64(len(result.Created)))
		metrics.IndexesReconciledTotal.WithLabelValues(namespace, "dropped").Add(float64(len(result.Dropped)))
		metrics.IndexesReconciledTotal.WithLabelValues(namespace, "kept").Add(float64(len(result.Kept)))
		metrics.IndexesReconciledTotal.WithLabelValues(namespace, "failed").Add(float64(len(result.Failed) + len(result.FailedDrops)))

		for _, failed := range result.Failed {
			field := e.longestField(namespace, failed.Index)
			if field == "" {
				continue
			}
			log.Warn().
				Str("namespace", namespace).
				Str("index", failed.Index.Name()).
				Str("field", field).
				Msg("index too large to create, demoting field to hash mode")
			e.qs.DemoteToHash(namespace, field)
			metrics.FieldsDemotedTotal.WithLabelValues(namespace).Inc()
		}

		log.Info().
			Str("namespace", namespace).
			Int("created", len(result.Created)).
			Int("dropped", len(result.Dropped)).
			Int("kept", len(result.Kept)).
			Int("failed", len(result.Failed)).
			Bool("applied", e.cfg.DoChanges && !e.cfg.ShowChangesOnly).
			Msg("reconciliation cycle complete")
	}

	metrics.SyncCyclesTotal.WithLabelValues("ok").Inc()
	return nil
}

func (e *Engine) persistState() error {
	doc, err := statepersist.Build(e.qs.Profiles(), e.qs.CollectionStatsSnapshot(), e.qs.IndexStatsSnapshot())
	if err != nil {
		return err
	}
	return e.state.UpsertState(e.stateCollection, doc)
}

// longestField picks the field within idx with the largest observed
// stringified length, the one spec §3/§7 says to demote to hash mode
// after an index-too-large create failure.
func (e *Engine) longestField(namespace string, idx *domain.CompoundIndex) string {
	var longestPath string
	var longest int
	for _, path := range idx.Paths() {
		fs := e.qs.FieldStats(namespace, path)
		if fs == nil {
			continue
		}
		if fs.Longest > longest {
			longest = fs.Longest
			longestPath = path
		}
	}
	return longestPath
}
