package statepersist_test

import (
	"testing"
	"time"

	"github.com/autoindex/idxadvisor/pkg/domain"
	"github.com/autoindex/idxadvisor/pkg/statepersist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAndParseRoundTripsProfiles(t *testing.T) {
	p := domain.NewQueryProfile("users")
	p.Exact.Add("city")
	p.Exact.Add("age")
	p.Sort = []domain.SortKey{{Path: "createdAt", Direction: domain.Descending}}
	p.Range.Add("score")
	p.UsageCount = 7
	p.LastQueryTime = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	p.Sources = []domain.Source{{Source: "checkout-service", Version: "3"}}

	doc, err := statepersist.Build([]*domain.QueryProfile{p}, nil, nil)
	require.NoError(t, err)

	profiles, _, _, err := statepersist.Parse(doc)
	require.NoError(t, err)
	require.Len(t, profiles, 1)

	got := profiles[0]
	assert.Equal(t, "users", got.Namespace)
	assert.Equal(t, []string{"city", "age"}, got.Exact.Ordered())
	assert.Equal(t, []string{"score"}, got.Range.Ordered())
	assert.Equal(t, p.Sort, got.Sort)
	assert.Equal(t, int64(7), got.UsageCount)
	assert.True(t, p.LastQueryTime.Equal(got.LastQueryTime))
	assert.Equal(t, p.Sources, got.Sources)
}

func TestBuildAndParseRoundTripsFieldPathsWithDots(t *testing.T) {
	collStats := map[string]*domain.CollectionStatistics{
		"orders": {
			Fields: map[string]*domain.FieldStatistics{
				"items.sku": {Cardinality: 42, Longest: 10, Mode: domain.ModeNormal, ArrayPrefixes: map[string]struct{}{"items": {}}},
			},
			KnownArrayPrefixes: map[string]struct{}{"items": {}},
			LastSampleTime:     time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			SampleCount:        1000,
		},
	}

	doc, err := statepersist.Build(nil, collStats, nil)
	require.NoError(t, err)

	_, got, _, err := statepersist.Parse(doc)
	require.NoError(t, err)

	require.Contains(t, got, "orders")
	require.Contains(t, got["orders"].Fields, "items.sku")
	fs := got["orders"].Fields["items.sku"]
	assert.Equal(t, int64(42), fs.Cardinality)
	assert.Equal(t, 10, fs.Longest)
	assert.Contains(t, fs.ArrayPrefixes, "items")
	assert.Contains(t, got["orders"].KnownArrayPrefixes, "items")
	assert.Equal(t, int64(1000), got["orders"].SampleCount)
}

func TestBuildAndParseRoundTripsIndexStatistics(t *testing.T) {
	indexStats := map[string]*domain.IndexStatistics{
		"auto_deadbeef": {
			Positions: []domain.IndexPositionStatistics{
				{Path: "city", CurrentAverageDistinct: 2.5, Reduction: 0.5},
			},
			LastSampleTime: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			TotalSampled:   500,
		},
	}

	doc, err := statepersist.Build(nil, nil, indexStats)
	require.NoError(t, err)

	_, _, got, err := statepersist.Parse(doc)
	require.NoError(t, err)

	require.Contains(t, got, "auto_deadbeef")
	require.Len(t, got["auto_deadbeef"].Positions, 1)
	assert.Equal(t, "city", got["auto_deadbeef"].Positions[0].Path)
	assert.InDelta(t, 0.5, got["auto_deadbeef"].Positions[0].Reduction, 0.0001)
	assert.Equal(t, int64(500), got["auto_deadbeef"].TotalSampled)
}

func TestParseEmptyDocumentReturnsEmptyResults(t *testing.T) {
	profiles, collStats, indexStats, err := statepersist.Parse(domain.Document{})
	require.NoError(t, err)
	assert.Empty(t, profiles)
	assert.Empty(t, collStats)
	assert.Empty(t, indexStats)
}
