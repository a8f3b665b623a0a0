package profile_test

import (
	"testing"

	"github.com/autoindex/idxadvisor/pkg/domain"
	"github.com/autoindex/idxadvisor/pkg/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldStats(cardinality int64) *domain.FieldStatistics {
	return &domain.FieldStatistics{Cardinality: cardinality, Mode: domain.ModeNormal, ArrayPrefixes: map[string]struct{}{}}
}

func TestNaiveIndexOrdersExactThenSortThenRange(t *testing.T) {
	p := domain.NewQueryProfile("users")
	p.Exact.Add("city")
	p.Range.Add("age")
	p.Sort = []domain.SortKey{{Path: "createdAt", Direction: domain.Descending}}

	idx := profile.NaiveIndex(p)

	require.Len(t, idx.Keys, 3)
	assert.Equal(t, "city", idx.Keys[0].Path)
	assert.Equal(t, "createdAt", idx.Keys[1].Path)
	assert.Equal(t, domain.Descending, idx.Keys[1].Direction)
	assert.Equal(t, "age", idx.Keys[2].Path)
}

func TestOptimizeSortsExactByDescendingCardinality(t *testing.T) {
	p := domain.NewQueryProfile("users")
	p.Exact.Add("city")
	p.Exact.Add("status")

	stats := domain.NewCollectionStatistics()
	stats.Fields["city"] = fieldStats(500)
	stats.Fields["status"] = fieldStats(5000)

	cfg := domain.DefaultConfig()
	compounds, hashed := profile.Optimize(p, stats, cfg)

	require.Len(t, compounds, 1)
	assert.Empty(t, hashed)
	require.Len(t, compounds[0].Keys, 2)
	assert.Equal(t, "status", compounds[0].Keys[0].Path, "higher cardinality field should lead")
	assert.Equal(t, "city", compounds[0].Keys[1].Path)
}

func TestOptimizeDropsLowCardinalityFieldsUnlessCoverageWouldEmpty(t *testing.T) {
	p := domain.NewQueryProfile("users")
	p.Exact.Add("isActive")
	p.Sort = []domain.SortKey{{Path: "createdAt", Direction: domain.Ascending}}

	stats := domain.NewCollectionStatistics()
	stats.Fields["isActive"] = fieldStats(2) // below default minimum of 3
	stats.Fields["createdAt"] = fieldStats(10000)

	cfg := domain.DefaultConfig()
	compounds, _ := profile.Optimize(p, stats, cfg)

	require.Len(t, compounds, 1)
	paths := compounds[0].Paths()
	assert.NotContains(t, paths, "isActive")
	assert.Contains(t, paths, "createdAt")
}

func TestOptimizeRevertsDropWhenCoverageWouldBecomeEmpty(t *testing.T) {
	p := domain.NewQueryProfile("users")
	p.Exact.Add("isActive")

	stats := domain.NewCollectionStatistics()
	stats.Fields["isActive"] = fieldStats(2) // below default minimum of 3

	cfg := domain.DefaultConfig()
	compounds, _ := profile.Optimize(p, stats, cfg)

	require.Len(t, compounds, 1)
	assert.Equal(t, []string{"isActive"}, compounds[0].Paths(), "dropping the only field would leave empty coverage, so the drop reverts")
}

func TestOptimizeSplitsHashModeFieldsIntoSeparateIndexes(t *testing.T) {
	p := domain.NewQueryProfile("users")
	p.Exact.Add("bigBlob")
	p.Exact.Add("city")

	stats := domain.NewCollectionStatistics()
	stats.Fields["bigBlob"] = &domain.FieldStatistics{Cardinality: 10000, Mode: domain.ModeHash, ArrayPrefixes: map[string]struct{}{}}
	stats.Fields["city"] = fieldStats(500)

	cfg := domain.DefaultConfig()
	compounds, hashed := profile.Optimize(p, stats, cfg)

	require.Len(t, compounds, 1)
	assert.Equal(t, []string{"city"}, compounds[0].Paths())

	require.Len(t, hashed, 1)
	assert.Equal(t, "bigBlob", hashed[0].Keys[0].Path)
	assert.Equal(t, domain.Hashed, hashed[0].Keys[0].Direction)
}

func TestOptimizeCanonicalizesSortDirection(t *testing.T) {
	p := domain.NewQueryProfile("users")
	p.Sort = []domain.SortKey{
		{Path: "createdAt", Direction: domain.Descending},
		{Path: "score", Direction: domain.Ascending},
	}

	stats := domain.NewCollectionStatistics()
	stats.Fields["createdAt"] = fieldStats(10000)
	stats.Fields["score"] = fieldStats(10000)

	cfg := domain.DefaultConfig()
	compounds, _ := profile.Optimize(p, stats, cfg)

	require.Len(t, compounds, 1)
	require.Len(t, compounds[0].Keys, 2)
	assert.Equal(t, domain.Ascending, compounds[0].Keys[0].Direction, "first sort key must always canonicalize to +1")
	assert.Equal(t, domain.Descending, compounds[0].Keys[1].Direction, "second key's direction flips relative to the first")
}

func TestOptimizeSplitsByArrayPrefix(t *testing.T) {
	p := domain.NewQueryProfile("orders")
	p.Exact.Add("items.sku")
	p.Exact.Add("tags.name")

	stats := domain.NewCollectionStatistics()
	stats.Fields["items.sku"] = &domain.FieldStatistics{Cardinality: 500, Mode: domain.ModeNormal, ArrayPrefixes: map[string]struct{}{"items": {}}}
	stats.Fields["tags.name"] = &domain.FieldStatistics{Cardinality: 500, Mode: domain.ModeNormal, ArrayPrefixes: map[string]struct{}{"tags": {}}}

	cfg := domain.DefaultConfig()
	compounds, _ := profile.Optimize(p, stats, cfg)

	require.Len(t, compounds, 2, "two distinct array prefixes should split into two indexes")
}

func TestOptimizeSynthesizesMissingFieldStatistics(t *testing.T) {
	p := domain.NewQueryProfile("users")
	p.Exact.Add("neverSampled")

	stats := domain.NewCollectionStatistics()
	cfg := domain.DefaultConfig()

	compounds, _ := profile.Optimize(p, stats, cfg)

	require.Len(t, compounds, 1)
	assert.Equal(t, []string{"neverSampled"}, compounds[0].Paths())
}
