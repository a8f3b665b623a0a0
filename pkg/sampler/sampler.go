// Package sampler draws uniform random documents from a collection and
// derives the per-field and per-index statistics the optimizer and
// reduction loop consume (spec §4.3).
package sampler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spaolacci/murmur3"

	"github.com/autoindex/idxadvisor/pkg/domain"
)

// Sampler draws samples through a domain.DataSource and turns them into
// statistics. It never retains sampled documents between calls; each call
// draws and discards its own sample.
type Sampler struct {
	source domain.DataSource
}

// New creates a Sampler over source.
func New(source domain.DataSource) *Sampler {
	return &Sampler{source: source}
}

// sample draws up to n documents from namespace with one SampleDocuments
// call, then sleeps speed/len(docs) once for every document after the
// first, so the call takes close to speed in all (spec §4.3, "pacing inter-document
// latency to spread the work over sampleSpeed seconds"). The adapter
// itself performs the uniform-without-replacement, ascending-cursor walk;
// pacing is this package's responsibility since only it knows the target
// duration.
func (s *Sampler) sample(namespace string, n int, speed time.Duration) ([]domain.Document, error) {
	docs, err := s.source.SampleDocuments(namespace, n)
	if err != nil {
		return nil, fmt.Errorf("sampling %s: %w", namespace, err)
	}
	if len(docs) <= 1 || speed <= 0 {
		return docs, nil
	}
	perDoc := speed / time.Duration(len(docs))
	for range docs[1:] {
		time.Sleep(perDoc)
	}
	return docs, nil
}

// fingerprint hashes a stringified value to bound the memory a distinct-
// value set costs (spec §4.3, "accumulate a hash set of value
// fingerprints per path").
func fingerprint(s string) uint64 {
	return murmur3.Sum64([]byte(s))
}

// SampleCollection draws up to sampleSize documents from namespace, paced
// over speed, and derives fresh CollectionStatistics from them (spec
// §4.3, "collection sampling"). longestIndexableValue is the hash-mode
// threshold (spec §3).
func (s *Sampler) SampleCollection(namespace string, sampleSize int, speed time.Duration, longestIndexableValue int) (*domain.CollectionStatistics, error) {
	docs, err := s.sample(namespace, sampleSize, speed)
	if err != nil {
		return nil, err
	}

	fingerprints := make(map[string]map[uint64]struct{})
	longest := make(map[string]int)
	arrayPrefixes := make(map[string]map[string]struct{})
	knownArrayPrefixes := make(map[string]struct{})

	for _, doc := range docs {
		for _, fp := range domain.FlattenDocument(doc) {
			if _, ok := fingerprints[fp.Path]; !ok {
				fingerprints[fp.Path] = make(map[uint64]struct{})
				arrayPrefixes[fp.Path] = make(map[string]struct{})
			}
			for _, prefix := range fp.ArrayPrefixes {
				arrayPrefixes[fp.Path][prefix] = struct{}{}
				knownArrayPrefixes[prefix] = struct{}{}
			}
			for _, v := range fp.Values {
				str := fmt.Sprintf("%v", v)
				if len(str) > longest[fp.Path] {
					longest[fp.Path] = len(str)
				}
				fingerprints[fp.Path][fingerprint(str)] = struct{}{}
			}
		}
	}

	stats := domain.NewCollectionStatistics()
	stats.LastSampleTime = time.Now()
	stats.SampleCount = int64(len(docs))
	stats.KnownArrayPrefixes = knownArrayPrefixes

	for path, set := range fingerprints {
		fs := domain.NewFieldStatistics()
		fs.Cardinality = int64(len(set))
		fs.Longest = longest[path]
		if fs.Longest > longestIndexableValue {
			fs.Mode = domain.ModeHash
		}
		fs.ArrayPrefixes = arrayPrefixes[path]
		stats.Fields[path] = fs
	}

	log.Debug().Str("namespace", namespace).Int("sampled", len(docs)).Int("fields", len(stats.Fields)).Msg("collection statistics refreshed")
	return stats, nil
}

// SampleIndexes draws one shared sample of sampleSize documents from
// namespace and derives IndexStatistics for every prefix length of every
// index given (spec §4.3, "index sampling").
func (s *Sampler) SampleIndexes(namespace string, indexes []*domain.CompoundIndex, sampleSize int, speed time.Duration) (map[string]*domain.IndexStatistics, error) {
	docs, err := s.sample(namespace, sampleSize, speed)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make(map[string]*domain.IndexStatistics, len(indexes))
	for _, idx := range indexes {
		out[idx.EffectiveName()] = sampleOneIndex(idx, docs, now)
	}
	return out, nil
}

// sampleOneIndex computes, for every prefix length k of idx, the average
// number of sampled key tuples per distinct tuple (total tuple occurrences
// divided by the number of distinct tuples) and the resulting
// reduction at that position (spec §3: reduction[i] = avgDistinct[i] /
// avgDistinct[i-1], with avgDistinct[-1] := total sampled count).
func sampleOneIndex(idx *domain.CompoundIndex, docs []domain.Document, now time.Time) *domain.IndexStatistics {
	paths := idx.Paths()
	positions := make([]domain.IndexPositionStatistics, len(paths))
	prevAverage := float64(len(docs))

	for k := 1; k <= len(paths); k++ {
		freq := make(map[uint64]int)
		for _, doc := range docs {
			for _, tuple := range tuplesForPrefix(doc, paths[:k]) {
				freq[fingerprint(tuple)]++
			}
		}
		avg := 0.0
		if len(freq) > 0 {
			total := 0
			for _, c := range freq {
				total += c
			}
			avg = float64(total) / float64(len(freq))
		}
		reduction := 0.0
		if prevAverage > 0 {
			reduction = avg / prevAverage
		}
		positions[k-1] = domain.IndexPositionStatistics{
			Path:                   paths[k-1],
			CurrentAverageDistinct: avg,
			Reduction:              reduction,
		}
		prevAverage = avg
	}

	return &domain.IndexStatistics{
		Positions:      positions,
		LastSampleTime: now,
		TotalSampled:   int64(len(docs)),
	}
}

// tuplesForPrefix returns every value tuple a document contributes across
// the first k paths of an index, fanning out across arrays (multikey
// fan-out, same semantics pkg/indexing uses to build postings).
func tuplesForPrefix(doc domain.Document, paths []string) []string {
	tuples := domain.TuplesForPaths(doc, paths)
	out := make([]string, len(tuples))
	for i, t := range tuples {
		out[i] = fmt.Sprintf("%v", t)
	}
	return out
}
