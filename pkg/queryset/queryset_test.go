package queryset_test

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/autoindex/idxadvisor/pkg/domain"
	"github.com/autoindex/idxadvisor/pkg/queryset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDataSource struct {
	docs []domain.Document
}

func (f *fakeDataSource) CountDocuments(string) (int64, error) { return int64(len(f.docs)), nil }

func (f *fakeDataSource) SampleDocuments(string, int) ([]domain.Document, error) {
	return f.docs, nil
}

func (f *fakeDataSource) ProfileStream() <-chan domain.ProfileRecord { return nil }
func (f *fakeDataSource) CreateIndex(*domain.CompoundIndex) error    { return nil }
func (f *fakeDataSource) DropIndex(string, string) error             { return nil }
func (f *fakeDataSource) ListIndexes(string) ([]*domain.CompoundIndex, error) { return nil, nil }

func TestObserveMergesEquivalentProfiles(t *testing.T) {
	qs := queryset.New(&fakeDataSource{})
	now := time.Now()

	record := domain.ProfileRecord{Namespace: "users", Query: primitive.D{{Key: "age", Value: 30}}}
	qs.Observe(record, now)
	qs.Observe(record, now.Add(time.Minute))

	profiles := qs.Profiles()
	require.Len(t, profiles, 1)
	assert.Equal(t, int64(2), profiles[0].UsageCount)
}

func TestObserveKeepsDistinctProfilesSeparate(t *testing.T) {
	qs := queryset.New(&fakeDataSource{})
	now := time.Now()

	qs.Observe(domain.ProfileRecord{Namespace: "users", Query: primitive.D{{Key: "age", Value: 30}}}, now)
	qs.Observe(domain.ProfileRecord{Namespace: "users", Query: primitive.D{{Key: "city", Value: "Boston"}}}, now)

	assert.Len(t, qs.Profiles(), 2)
}

func TestSynchronizeFallsBackToNaiveIndexWithoutStatistics(t *testing.T) {
	qs := queryset.New(&fakeDataSource{}) // no documents to sample
	now := time.Now()

	qs.Observe(domain.ProfileRecord{Namespace: "users", Query: primitive.D{{Key: "age", Value: 30}}}, now)

	cfg := domain.DefaultConfig()
	cfg.MinimumQueryCount = 1

	recommended, err := qs.Synchronize(cfg, now)

	require.NoError(t, err)
	require.Contains(t, recommended, "users")
	set := recommended["users"]
	require.Equal(t, 1, set.Len())
	assert.Equal(t, []string{"age"}, set.All()[0].Paths())
}

func TestSynchronizeIgnoresProfilesBelowMinimumQueryCount(t *testing.T) {
	qs := queryset.New(&fakeDataSource{})
	now := time.Now()

	qs.Observe(domain.ProfileRecord{Namespace: "users", Query: primitive.D{{Key: "age", Value: 30}}}, now)

	cfg := domain.DefaultConfig()
	cfg.MinimumQueryCount = 5 // one observation never reaches this

	recommended, err := qs.Synchronize(cfg, now)

	require.NoError(t, err)
	assert.Empty(t, recommended)
}

func TestSynchronizePrunesStaleProfiles(t *testing.T) {
	qs := queryset.New(&fakeDataSource{})
	old := time.Now().AddDate(0, 0, -60)

	qs.Observe(domain.ProfileRecord{Namespace: "users", Query: primitive.D{{Key: "age", Value: 30}}}, old)

	cfg := domain.DefaultConfig()
	cfg.MinimumQueryCount = 1
	cfg.RecentQueriesOnlyDays = 30

	now := time.Now()
	recommended, err := qs.Synchronize(cfg, now)

	require.NoError(t, err)
	assert.Empty(t, recommended)
	assert.Empty(t, qs.Profiles(), "stale profile should be pruned from the live set")
}

func TestSynchronizeReducesPrefixIndexes(t *testing.T) {
	// city and age both carry cardinality 2, so the descending-cardinality
	// stable sort in profile.Optimize leaves declaration order untouched:
	// {city} stays a literal index-prefix of {city, age}.
	docs := []domain.Document{
		{"city": "Boston", "age": 25},
		{"city": "Boston", "age": 30},
		{"city": "Chicago", "age": 25},
		{"city": "Chicago", "age": 30},
	}
	qs := queryset.New(&fakeDataSource{docs: docs})
	now := time.Now()

	// One profile on {city} alone, another on {city, age}: {city} is an
	// index-prefix of {city, age} and should be absorbed.
	qs.Observe(domain.ProfileRecord{Namespace: "users", Query: primitive.D{{Key: "city", Value: "Boston"}}}, now)
	qs.Observe(domain.ProfileRecord{Namespace: "users", Query: primitive.D{{Key: "city", Value: "Boston"}, {Key: "age", Value: 30}}}, now)

	cfg := domain.DefaultConfig()
	cfg.MinimumQueryCount = 1
	cfg.MinimumCardinality = 0 // keep every field regardless of sampled cardinality
	cfg.MinimumReduction = 2.0 // reduction ratios are <=1, so this disables simplify's removal
	cfg.IndexExtension = false

	recommended, err := qs.Synchronize(cfg, now)

	require.NoError(t, err)
	require.Contains(t, recommended, "users")
	set := recommended["users"]
	assert.Equal(t, 1, set.Len(), "the shorter {city} candidate should be absorbed by {city, age}")
}

func TestDemoteToHashMarksFieldAfterCollectionStatsExist(t *testing.T) {
	docs := []domain.Document{
		{"blob": "x"},
	}
	qs := queryset.New(&fakeDataSource{docs: docs})
	now := time.Now()

	qs.Observe(domain.ProfileRecord{Namespace: "users", Query: primitive.D{{Key: "blob", Value: "x"}}}, now)

	cfg := domain.DefaultConfig()
	cfg.MinimumQueryCount = 1
	_, err := qs.Synchronize(cfg, now) // populates collection statistics
	require.NoError(t, err)

	require.NotNil(t, qs.FieldStats("users", "blob"))
	assert.Equal(t, domain.ModeNormal, qs.FieldStats("users", "blob").Mode)

	qs.DemoteToHash("users", "blob")

	assert.Equal(t, domain.ModeHash, qs.FieldStats("users", "blob").Mode)
}

func TestDemoteToHashIsNoOpForUnknownNamespace(t *testing.T) {
	qs := queryset.New(&fakeDataSource{})
	assert.NotPanics(t, func() { qs.DemoteToHash("nonexistent", "field") })
}

func TestRestoreReplacesLiveState(t *testing.T) {
	qs := queryset.New(&fakeDataSource{})

	p := domain.NewQueryProfile("users")
	p.Exact.Add("age")
	p.UsageCount = 3

	qs.Restore([]*domain.QueryProfile{p}, nil, nil)

	profiles := qs.Profiles()
	require.Len(t, profiles, 1)
	assert.Equal(t, int64(3), profiles[0].UsageCount)
}
