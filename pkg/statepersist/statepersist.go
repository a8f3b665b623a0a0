// Package statepersist converts the engine's live QuerySet/Sampler state
// to and from the single JSON-safe state document the engine upserts
// into a reserved collection (spec §6, "state document shape").
package statepersist

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/autoindex/idxadvisor/pkg/domain"
)

// fieldPathSeparator is the literal "." replacement used for map keys
// derived from field paths, since some backends forbid "." in document
// keys (spec §6).
const fieldPathSeparator = "_____"

func encodeKey(path string) string { return strings.ReplaceAll(path, ".", fieldPathSeparator) }
func decodeKey(key string) string  { return strings.ReplaceAll(key, fieldPathSeparator, ".") }

const isoLayout = time.RFC3339Nano

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(isoLayout)
}

func decodeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

type sourceDoc struct {
	Source  string `json:"source"`
	Version string `json:"version"`
}

type sortKeyDoc struct {
	Path      string `json:"path"`
	Direction int8   `json:"direction"`
}

type profileDoc struct {
	Namespace     string       `json:"namespace"`
	Exact         []string     `json:"exact"`
	Sort          []sortKeyDoc `json:"sort"`
	Range         []string     `json:"range"`
	UsageCount    int64        `json:"usageCount"`
	LastQueryTime string       `json:"lastQueryTime"`
	Sources       []sourceDoc  `json:"sources"`
}

type fieldStatsDoc struct {
	Cardinality   int64    `json:"cardinality"`
	Longest       int      `json:"longest"`
	Mode          int8     `json:"mode"`
	ArrayPrefixes []string `json:"arrayPrefixes"`
}

type collectionStatsDoc struct {
	Fields             map[string]fieldStatsDoc `json:"fields"`
	KnownArrayPrefixes []string                 `json:"knownArrayPrefixes"`
	LastSampleTime     string                   `json:"lastSampleTime"`
	SampleCount        int64                    `json:"sampleCount"`
}

type indexPositionDoc struct {
	Path                   string  `json:"path"`
	CurrentAverageDistinct float64 `json:"currentAverageDistinct"`
	LastAverageDistinct    float64 `json:"lastAverageDistinct"`
	Reduction              float64 `json:"reduction"`
}

type indexStatsDoc struct {
	Positions      []indexPositionDoc `json:"positions"`
	LastSampleTime string             `json:"lastSampleTime"`
	TotalSampled   int64              `json:"totalSampled"`
}

type samplerDoc struct {
	CollectionStatistics map[string]collectionStatsDoc `json:"collectionStatistics"`
	IndexStatistics      map[string]indexStatsDoc      `json:"indexStatistics"`
}

type stateDoc struct {
	QuerySet []profileDoc `json:"querySet"`
	Sampler  samplerDoc   `json:"sampler"`
}

// Build renders the engine's live state into the single JSON-safe
// document the state collection stores (spec §6).
func Build(profiles []*domain.QueryProfile, collStats map[string]*domain.CollectionStatistics, indexStats map[string]*domain.IndexStatistics) (domain.Document, error) {
	sd := stateDoc{
		QuerySet: make([]profileDoc, 0, len(profiles)),
		Sampler: samplerDoc{
			CollectionStatistics: make(map[string]collectionStatsDoc, len(collStats)),
			IndexStatistics:      make(map[string]indexStatsDoc, len(indexStats)),
		},
	}

	for _, p := range profiles {
		sources := make([]sourceDoc, len(p.Sources))
		for i, s := range p.Sources {
			sources[i] = sourceDoc{Source: s.Source, Version: s.Version}
		}
		sortKeys := make([]sortKeyDoc, len(p.Sort))
		for i, sk := range p.Sort {
			sortKeys[i] = sortKeyDoc{Path: sk.Path, Direction: int8(sk.Direction)}
		}
		sd.QuerySet = append(sd.QuerySet, profileDoc{
			Namespace:     p.Namespace,
			Exact:         p.Exact.Ordered(),
			Sort:          sortKeys,
			Range:         p.Range.Ordered(),
			UsageCount:    p.UsageCount,
			LastQueryTime: encodeTime(p.LastQueryTime),
			Sources:       sources,
		})
	}

	for namespace, stats := range collStats {
		fields := make(map[string]fieldStatsDoc, len(stats.Fields))
		for path, fs := range stats.Fields {
			prefixes := make([]string, 0, len(fs.ArrayPrefixes))
			for p := range fs.ArrayPrefixes {
				prefixes = append(prefixes, p)
			}
			fields[encodeKey(path)] = fieldStatsDoc{
				Cardinality:   fs.Cardinality,
				Longest:       fs.Longest,
				Mode:          int8(fs.Mode),
				ArrayPrefixes: prefixes,
			}
		}
		known := make([]string, 0, len(stats.KnownArrayPrefixes))
		for p := range stats.KnownArrayPrefixes {
			known = append(known, p)
		}
		sd.Sampler.CollectionStatistics[namespace] = collectionStatsDoc{
			Fields:             fields,
			KnownArrayPrefixes: known,
			LastSampleTime:     encodeTime(stats.LastSampleTime),
			SampleCount:        stats.SampleCount,
		}
	}

	for name, stats := range indexStats {
		positions := make([]indexPositionDoc, len(stats.Positions))
		for i, pos := range stats.Positions {
			positions[i] = indexPositionDoc{
				Path:                   pos.Path,
				CurrentAverageDistinct: pos.CurrentAverageDistinct,
				LastAverageDistinct:    pos.LastAverageDistinct,
				Reduction:              pos.Reduction,
			}
		}
		sd.Sampler.IndexStatistics[encodeKey(name)] = indexStatsDoc{
			Positions:      positions,
			LastSampleTime: encodeTime(stats.LastSampleTime),
			TotalSampled:   stats.TotalSampled,
		}
	}

	raw, err := json.Marshal(sd)
	if err != nil {
		return nil, fmt.Errorf("encoding engine state: %w", err)
	}
	var doc domain.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("rendering engine state as a document: %w", err)
	}
	return doc, nil
}

// Parse recovers profiles and statistics caches from a previously-built
// state document.
func Parse(doc domain.Document) ([]*domain.QueryProfile, map[string]*domain.CollectionStatistics, map[string]*domain.IndexStatistics, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("re-encoding state document: %w", err)
	}
	var sd stateDoc
	if err := json.Unmarshal(raw, &sd); err != nil {
		return nil, nil, nil, fmt.Errorf("decoding engine state: %w", err)
	}

	profiles := make([]*domain.QueryProfile, 0, len(sd.QuerySet))
	for _, pd := range sd.QuerySet {
		p := domain.NewQueryProfile(pd.Namespace)
		for _, f := range pd.Exact {
			p.Exact.Add(f)
		}
		for _, f := range pd.Range {
			p.Range.Add(f)
		}
		for _, sk := range pd.Sort {
			p.Sort = append(p.Sort, domain.SortKey{Path: sk.Path, Direction: domain.Direction(sk.Direction)})
		}
		p.UsageCount = pd.UsageCount
		p.LastQueryTime = decodeTime(pd.LastQueryTime)
		for _, s := range pd.Sources {
			p.Sources = append(p.Sources, domain.Source{Source: s.Source, Version: s.Version})
		}
		profiles = append(profiles, p)
	}

	collStats := make(map[string]*domain.CollectionStatistics, len(sd.Sampler.CollectionStatistics))
	for namespace, cd := range sd.Sampler.CollectionStatistics {
		stats := domain.NewCollectionStatistics()
		stats.LastSampleTime = decodeTime(cd.LastSampleTime)
		stats.SampleCount = cd.SampleCount
		for encodedPath, fd := range cd.Fields {
			fs := domain.NewFieldStatistics()
			fs.Cardinality = fd.Cardinality
			fs.Longest = fd.Longest
			fs.Mode = domain.FieldMode(fd.Mode)
			for _, prefix := range fd.ArrayPrefixes {
				fs.ArrayPrefixes[prefix] = struct{}{}
			}
			stats.Fields[decodeKey(encodedPath)] = fs
		}
		for _, prefix := range cd.KnownArrayPrefixes {
			stats.KnownArrayPrefixes[prefix] = struct{}{}
		}
		collStats[namespace] = stats
	}

	indexStats := make(map[string]*domain.IndexStatistics, len(sd.Sampler.IndexStatistics))
	for encodedName, id := range sd.Sampler.IndexStatistics {
		positions := make([]domain.IndexPositionStatistics, len(id.Positions))
		for i, pos := range id.Positions {
			positions[i] = domain.IndexPositionStatistics{
				Path:                   pos.Path,
				CurrentAverageDistinct: pos.CurrentAverageDistinct,
				LastAverageDistinct:    pos.LastAverageDistinct,
				Reduction:              pos.Reduction,
			}
		}
		indexStats[decodeKey(encodedName)] = &domain.IndexStatistics{
			Positions:      positions,
			LastSampleTime: decodeTime(id.LastSampleTime),
			TotalSampled:   id.TotalSampled,
		}
	}

	return profiles, collStats, indexStats, nil
}
