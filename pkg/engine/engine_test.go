package engine_test

import (
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/autoindex/idxadvisor/pkg/domain"
	"github.com/autoindex/idxadvisor/pkg/engine"
	"github.com/autoindex/idxadvisor/pkg/statepersist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDataSource struct {
	docs    []domain.Document
	records chan domain.ProfileRecord
}

func newFakeDataSource() *fakeDataSource {
	return &fakeDataSource{records: make(chan domain.ProfileRecord, 8)}
}

func (f *fakeDataSource) CountDocuments(string) (int64, error) { return int64(len(f.docs)), nil }

func (f *fakeDataSource) SampleDocuments(string, int) ([]domain.Document, error) {
	return f.docs, nil
}

func (f *fakeDataSource) ProfileStream() <-chan domain.ProfileRecord { return f.records }
func (f *fakeDataSource) CreateIndex(*domain.CompoundIndex) error    { return nil }
func (f *fakeDataSource) DropIndex(string, string) error             { return nil }
func (f *fakeDataSource) ListIndexes(string) ([]*domain.CompoundIndex, error) { return nil, nil }

type fakeStatePersister struct {
	docs      map[string]domain.Document
	upsertErr error
}

func newFakeStatePersister() *fakeStatePersister {
	return &fakeStatePersister{docs: make(map[string]domain.Document)}
}

func (f *fakeStatePersister) UpsertState(collection string, doc domain.Document) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.docs[collection] = doc
	return nil
}

func (f *fakeStatePersister) ReadState(collection string) (domain.Document, bool, error) {
	doc, ok := f.docs[collection]
	return doc, ok, nil
}

func testConfig() domain.Config {
	cfg := domain.DefaultConfig()
	cfg.MinimumQueryCount = 1
	cfg.IndexSynchronizationInterval = 10 * time.Millisecond
	return cfg
}

func TestTriggerSyncRunsImmediatelyAndPopulatesRecommendations(t *testing.T) {
	source := newFakeDataSource()
	state := newFakeStatePersister()
	cfg := testConfig()
	cfg.IndexSynchronizationInterval = time.Hour // ticker should never fire during this test

	e := engine.New(source, state, cfg, "")

	source.records <- domain.ProfileRecord{Namespace: "users", Query: primitive.D{{Key: "age", Value: 30}}}

	done := make(chan error, 1)
	go func() { done <- e.Run() }()

	// give Run a moment to drain the queued record before triggering sync
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, e.TriggerSync())

	recommended := e.Recommended()
	require.Contains(t, recommended, "users")
	assert.Equal(t, 1, recommended["users"].Len())

	result, ok := e.LastResult("users")
	require.True(t, ok)
	assert.NotNil(t, result)

	e.Stop()
	require.NoError(t, <-done)
}

func TestRunSynchronizesOnTickerInterval(t *testing.T) {
	source := newFakeDataSource()
	state := newFakeStatePersister()
	cfg := testConfig()

	e := engine.New(source, state, cfg, "")

	source.records <- domain.ProfileRecord{Namespace: "users", Query: primitive.D{{Key: "age", Value: 30}}}

	done := make(chan error, 1)
	go func() { done <- e.Run() }()

	require.Eventually(t, func() bool {
		_, ok := e.Recommended()["users"]
		return ok
	}, time.Second, 5*time.Millisecond, "ticker-driven cycle should eventually recommend an index")

	e.Stop()
	require.NoError(t, <-done)
}

func TestRunReturnsFatalErrorWhenProfileStreamCloses(t *testing.T) {
	source := newFakeDataSource()
	state := newFakeStatePersister()
	cfg := testConfig()
	cfg.IndexSynchronizationInterval = time.Hour

	e := engine.New(source, state, cfg, "")
	close(source.records)

	err := e.Run()

	require.Error(t, err)
	var fatal *engine.FatalError
	require.True(t, errors.As(err, &fatal))
}

func TestRunReturnsFatalErrorWhenStatePersistenceFails(t *testing.T) {
	source := newFakeDataSource()
	state := newFakeStatePersister()
	state.upsertErr = errors.New("disk full")
	cfg := testConfig()

	e := engine.New(source, state, cfg, "")

	done := make(chan error, 1)
	go func() { done <- e.Run() }()

	select {
	case err := <-done:
		require.Error(t, err)
		var fatal *engine.FatalError
		require.True(t, errors.As(err, &fatal))
	case <-time.After(time.Second):
		t.Fatal("expected Run to exit with a fatal error once the ticker fired")
	}
}

func TestTriggerSyncReturnsFatalErrorWhenStatePersistenceFails(t *testing.T) {
	source := newFakeDataSource()
	state := newFakeStatePersister()
	state.upsertErr = errors.New("disk full")
	cfg := testConfig()
	cfg.IndexSynchronizationInterval = time.Hour

	e := engine.New(source, state, cfg, "")

	err := e.TriggerSync()

	require.Error(t, err)
	var fatal *engine.FatalError
	require.True(t, errors.As(err, &fatal))
}

func TestRestoreLoadsPersistedProfiles(t *testing.T) {
	source := newFakeDataSource()
	state := newFakeStatePersister()
	cfg := testConfig()

	p := domain.NewQueryProfile("users")
	p.Exact.Add("age")
	p.UsageCount = 4
	doc, err := statepersist.Build([]*domain.QueryProfile{p}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, state.UpsertState(engine.DefaultStateCollection, doc))

	e := engine.New(source, state, cfg, "")
	require.NoError(t, e.Restore())

	profiles := e.Profiles()
	require.Len(t, profiles, 1)
	assert.Equal(t, "users", profiles[0].Namespace)
	assert.Equal(t, int64(4), profiles[0].UsageCount)
}

func TestRestoreWithoutPriorStateIsNoOp(t *testing.T) {
	source := newFakeDataSource()
	state := newFakeStatePersister()
	cfg := testConfig()

	e := engine.New(source, state, cfg, "")
	require.NoError(t, e.Restore())
	assert.Empty(t, e.Profiles())
}

func TestStopIsIdempotentWithRunExit(t *testing.T) {
	source := newFakeDataSource()
	state := newFakeStatePersister()
	cfg := testConfig()
	cfg.IndexSynchronizationInterval = time.Hour

	e := engine.New(source, state, cfg, "")

	done := make(chan error, 1)
	go func() { done <- e.Run() }()

	e.Stop()
	require.NoError(t, <-done)
}
