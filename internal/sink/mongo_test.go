package sink

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Geun-Oh/logsink/internal/record"
	"github.com/Geun-Oh/logsink/internal/store"
)

// fakeCollection records every store operation for assertions. Safe for
// concurrent use because the sweep goroutine runs alongside the test.
type fakeCollection struct {
	mu            sync.Mutex
	name          string
	inserted      []record.Document
	insertErr     error
	deleteCutoffs []time.Time
	deleteErr     error
	ensured       [][]store.IndexSpec
	ensureErr     error
	collectedInto []string
	collectErr    error
}

func (c *fakeCollection) Name() string { return c.name }

func (c *fakeCollection) InsertOne(_ context.Context, doc any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.insertErr != nil {
		return c.insertErr
	}
	c.inserted = append(c.inserted, doc.(record.Document))
	return nil
}

func (c *fakeCollection) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return 0, c.deleteErr
	}
	c.deleteCutoffs = append(c.deleteCutoffs, cutoff)
	return 0, nil
}

func (c *fakeCollection) EnsureIndexes(_ context.Context, specs []store.IndexSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ensureErr != nil {
		return c.ensureErr
	}
	c.ensured = append(c.ensured, specs)
	return nil
}

func (c *fakeCollection) CollectFieldNames(_ context.Context, into string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collectErr != nil {
		return c.collectErr
	}
	c.collectedInto = append(c.collectedInto, into)
	return nil
}

func (c *fakeCollection) insertedDocs() []record.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]record.Document(nil), c.inserted...)
}

func (c *fakeCollection) cutoffs() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Time(nil), c.deleteCutoffs...)
}

func (c *fakeCollection) collected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.collectedInto...)
}

type fakeStore struct {
	mu         sync.Mutex
	coll       *fakeCollection
	connectErr error
	connects   int
	closed     bool
}

func (s *fakeStore) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connects++
	return nil
}

func (s *fakeStore) Collection(name string) store.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coll.name = name
	return s.coll
}

func (s *fakeStore) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestSink(st *fakeStore, opts ...MongoOption) *MongoSink {
	base := []MongoOption{WithLogger(quietLogger()), WithRetention(0)}
	return NewMongo(st, "logs", append(base, opts...)...)
}

func TestWriteInsertsOneDocument(t *testing.T) {
	st := &fakeStore{coll: &fakeCollection{}}
	s := newTestSink(st)
	defer s.Close()

	require.NoError(t, s.Write(context.Background(), record.Record{"foo": "bar"}))

	docs := st.coll.insertedDocs()
	require.Len(t, docs, 1)
	assert.Equal(t, record.Record{"foo": "bar"}, docs[0].Fields)
	assert.Equal(t, uint64(1), s.Inserted())
}

func TestWriteEmptyRecordIsNoOp(t *testing.T) {
	st := &fakeStore{coll: &fakeCollection{}}
	s := newTestSink(st)
	defer s.Close()

	require.NoError(t, s.Write(context.Background(), nil))
	require.NoError(t, s.Write(context.Background(), record.Record{}))

	assert.Empty(t, st.coll.insertedDocs())
	assert.Zero(t, s.Inserted())

	// An empty record must not even trigger the lazy connect.
	assert.Zero(t, st.connects)
}

func TestWriteSwallowsInsertFailure(t *testing.T) {
	st := &fakeStore{coll: &fakeCollection{insertErr: errors.New("boom")}}
	s := newTestSink(st)
	defer s.Close()

	require.NoError(t, s.Write(context.Background(), record.Record{"foo": "bar"}))
	assert.Zero(t, s.Inserted())

	// Subsequent records keep flowing.
	st.coll.mu.Lock()
	st.coll.insertErr = nil
	st.coll.mu.Unlock()
	require.NoError(t, s.Write(context.Background(), record.Record{"foo": "baz"}))
	assert.Equal(t, uint64(1), s.Inserted())
}

func TestWriteSurfacesAuthenticationFailure(t *testing.T) {
	st := &fakeStore{coll: &fakeCollection{}, connectErr: store.ErrAuthentication}
	s := newTestSink(st)
	defer s.Close()

	err := s.Write(context.Background(), record.Record{"foo": "bar"})
	require.ErrorIs(t, err, store.ErrAuthentication)
}

func TestWriteSwallowsTransportFailure(t *testing.T) {
	st := &fakeStore{coll: &fakeCollection{}, connectErr: errors.New("connection refused")}
	s := newTestSink(st)
	defer s.Close()

	require.NoError(t, s.Write(context.Background(), record.Record{"foo": "bar"}))
	assert.Empty(t, st.coll.insertedDocs())
}

func TestConnectionAndIndexesResolvedOnce(t *testing.T) {
	specs := []store.IndexSpec{{Keys: []store.IndexKey{{Field: "type", Direction: 1}}}}
	st := &fakeStore{coll: &fakeCollection{}}
	s := newTestSink(st, WithIndexes(specs))
	defer s.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Write(context.Background(), record.Record{"n": i}))
	}

	assert.Equal(t, 1, st.connects)
	require.Len(t, st.coll.ensured, 1)
	assert.Equal(t, specs, st.coll.ensured[0])
	assert.Len(t, st.coll.insertedDocs(), 5)
}

func TestIndexFailureDoesNotBlockInserts(t *testing.T) {
	specs := []store.IndexSpec{{Keys: []store.IndexKey{{Field: "type", Direction: 1}}}}
	st := &fakeStore{coll: &fakeCollection{ensureErr: errors.New("index conflict")}}
	s := newTestSink(st, WithIndexes(specs))
	defer s.Close()

	require.NoError(t, s.Write(context.Background(), record.Record{"foo": "bar"}))
	assert.Len(t, st.coll.insertedDocs(), 1)
}

func TestInsertionCounterMonotonic(t *testing.T) {
	st := &fakeStore{coll: &fakeCollection{}}
	s := newTestSink(st, WithVerbose(true))
	defer s.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Write(context.Background(), record.Record{"n": i}))
	}
	assert.Equal(t, uint64(3), s.Inserted())
}

func TestRetentionSweepRecomputesCutoff(t *testing.T) {
	st := &fakeStore{coll: &fakeCollection{}}
	retention := time.Hour
	s := NewMongo(st, "logs",
		WithLogger(quietLogger()),
		WithRetention(retention),
		WithSweepSchedule(5*time.Millisecond, 10*time.Millisecond),
	)
	defer s.Close()

	require.Eventually(t, func() bool {
		return len(st.coll.cutoffs()) >= 2
	}, 2*time.Second, time.Millisecond)

	for _, cutoff := range st.coll.cutoffs() {
		assert.WithinDuration(t, time.Now().Add(-retention), cutoff, time.Second)
	}
}

func TestRetentionZeroDisablesSweep(t *testing.T) {
	st := &fakeStore{coll: &fakeCollection{}}
	s := NewMongo(st, "logs",
		WithLogger(quietLogger()),
		WithRetention(0),
		WithSweepSchedule(time.Millisecond, time.Millisecond),
	)
	defer s.Close()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, st.coll.cutoffs())
}

func TestFieldDiscoveryTargetsCompanionCollection(t *testing.T) {
	st := &fakeStore{coll: &fakeCollection{}}
	s := NewMongo(st, "logs",
		WithLogger(quietLogger()),
		WithRetention(0),
		WithFieldCollection(true),
		WithSweepSchedule(5*time.Millisecond, 10*time.Millisecond),
	)
	defer s.Close()

	require.Eventually(t, func() bool {
		return len(st.coll.collected()) >= 1
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, "logs_keys", st.coll.collected()[0])
	assert.Empty(t, st.coll.cutoffs())
}

func TestSweepFailuresAreSwallowed(t *testing.T) {
	st := &fakeStore{coll: &fakeCollection{deleteErr: errors.New("server down"), collectErr: errors.New("no mapreduce")}}
	s := NewMongo(st, "logs",
		WithLogger(quietLogger()),
		WithRetention(time.Hour),
		WithFieldCollection(true),
		WithSweepSchedule(5*time.Millisecond, 10*time.Millisecond),
	)

	time.Sleep(50 * time.Millisecond)

	// The sink still accepts writes after failed sweeps.
	require.NoError(t, s.Write(context.Background(), record.Record{"foo": "bar"}))
	assert.Len(t, st.coll.insertedDocs(), 1)
	require.NoError(t, s.Close())
}

func TestCloseStopsSweeps(t *testing.T) {
	st := &fakeStore{coll: &fakeCollection{}}
	s := NewMongo(st, "logs",
		WithLogger(quietLogger()),
		WithRetention(time.Hour),
		WithSweepSchedule(5*time.Millisecond, 10*time.Millisecond),
	)

	require.Eventually(t, func() bool {
		return len(st.coll.cutoffs()) >= 1
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, s.Close())

	n := len(st.coll.cutoffs())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, len(st.coll.cutoffs()))

	st.mu.Lock()
	defer st.mu.Unlock()
	assert.True(t, st.closed)
}

func TestNormalizedTimestampFromEpochtime(t *testing.T) {
	st := &fakeStore{coll: &fakeCollection{}}
	s := newTestSink(st)
	defer s.Close()

	require.NoError(t, s.Write(context.Background(), record.Record{"epochtime": float64(1700000000)}))

	docs := st.coll.insertedDocs()
	require.Len(t, docs, 1)
	assert.Equal(t, time.Unix(1700000000, 0), docs[0].Timestamp)
}
