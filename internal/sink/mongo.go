package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Geun-Oh/logsink/internal/record"
	"github.com/Geun-Oh/logsink/internal/store"
)

const (
	// DefaultRetention keeps documents for one week before the sweep
	// removes them.
	DefaultRetention = 7 * 24 * time.Hour

	defaultSweepDelay    = 60 * time.Second
	defaultSweepInterval = 24 * time.Hour
)

// MongoOption configures a MongoSink.
type MongoOption func(*MongoSink)

// WithIndexes sets the index definitions applied once when the collection
// handle is first resolved.
func WithIndexes(specs []store.IndexSpec) MongoOption {
	return func(s *MongoSink) { s.indexes = specs }
}

// WithRetention sets the retention window. 0 disables the cleanup sweep
// entirely. Default: one week.
func WithRetention(d time.Duration) MongoOption {
	return func(s *MongoSink) { s.retention = d }
}

// WithFieldCollection enables the periodic field-discovery sweep that
// records distinct top-level field names into "<collection>_keys".
func WithFieldCollection(enabled bool) MongoOption {
	return func(s *MongoSink) { s.collectFields = enabled }
}

// WithLogger sets the diagnostic logger. Default: logrus standard logger.
func WithLogger(l *logrus.Logger) MongoOption {
	return func(s *MongoSink) { s.log = l }
}

// WithVerbose enables index-application notices and insertion counting.
func WithVerbose(v bool) MongoOption {
	return func(s *MongoSink) { s.verbose = v }
}

// WithSweepSchedule overrides the initial delay and interval of the
// background sweeps. Default: 60s, then every 24h.
func WithSweepSchedule(delay, interval time.Duration) MongoOption {
	return func(s *MongoSink) {
		s.sweepDelay = delay
		s.sweepInterval = interval
	}
}

// WithNow overrides the wall clock used for timestamp defaults and the
// retention cutoff.
func WithNow(fn func() time.Time) MongoOption {
	return func(s *MongoSink) { s.now = fn }
}

// MongoSink persists records into a named MongoDB collection. The
// connection and collection handle are resolved lazily on first use and
// held for the sink's lifetime; background sweeps handle retention cleanup
// and optional field discovery.
type MongoSink struct {
	st         store.Store
	collection string

	indexes       []store.IndexSpec
	retention     time.Duration
	collectFields bool
	verbose       bool
	log           *logrus.Logger
	now           func() time.Time

	sweepDelay    time.Duration
	sweepInterval time.Duration

	mu        sync.Mutex
	connected bool
	coll      store.Collection

	inserted atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewMongo creates a sink writing to the named collection of the given
// store. No I/O happens here; the connection is established on first
// write or sweep. The sweep goroutine starts immediately when retention
// or field collection is enabled.
func NewMongo(st store.Store, collection string, opts ...MongoOption) *MongoSink {
	s := &MongoSink{
		st:            st,
		collection:    collection,
		retention:     DefaultRetention,
		log:           logrus.StandardLogger(),
		now:           time.Now,
		sweepDelay:    defaultSweepDelay,
		sweepInterval: defaultSweepInterval,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.retention > 0 || s.collectFields {
		s.wg.Add(1)
		go s.sweepLoop()
	}
	return s
}

// Write normalizes and inserts a single record. Empty records are a no-op.
// Insertion failures are logged and swallowed; the only error returned is
// the fatal authentication rejection from the lazy first connect.
func (s *MongoSink) Write(ctx context.Context, rec record.Record) error {
	if len(rec) == 0 {
		return nil
	}

	coll, err := s.resolve(ctx)
	if err != nil {
		if errors.Is(err, store.ErrAuthentication) {
			return err
		}
		s.log.Warnf("mongodb sink: %v", err)
		return nil
	}

	doc := record.Normalize(rec, s.now())
	if err := coll.InsertOne(ctx, doc); err != nil {
		s.log.Warnf("insert into %s failed, dropping document %+v: %v", s.collection, doc, err)
		return nil
	}

	n := s.inserted.Add(1)
	if s.verbose {
		s.log.Infof("inserted %d records", n)
	}
	return nil
}

// Inserted returns the monotonically increasing count of successful
// insertions.
func (s *MongoSink) Inserted() uint64 {
	return s.inserted.Load()
}

// Flush is a no-op; writes are unbuffered.
func (s *MongoSink) Flush() error { return nil }

// Close stops the background sweeps and releases the connection. Safe to
// call more than once.
func (s *MongoSink) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	s.connected = false
	s.coll = nil
	return s.st.Close(context.Background())
}

// Name returns the sink identifier.
func (s *MongoSink) Name() string {
	return "mongodb:" + s.collection
}

// resolve establishes the connection and collection handle on first use and
// memoizes them. Index definitions are applied exactly once, here. An index
// failure is logged and does not block inserts; an authentication rejection
// is returned as-is.
func (s *MongoSink) resolve(ctx context.Context) (store.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.coll != nil {
		return s.coll, nil
	}

	if !s.connected {
		if err := s.st.Connect(ctx); err != nil {
			if errors.Is(err, store.ErrAuthentication) {
				return nil, err
			}
			return nil, fmt.Errorf("connect: %w", err)
		}
		s.connected = true
	}

	coll := s.st.Collection(s.collection)
	if len(s.indexes) > 0 {
		if err := coll.EnsureIndexes(ctx, s.indexes); err != nil {
			s.log.Warnf("apply indexes on %s: %v", s.collection, err)
		} else if s.verbose {
			for _, spec := range s.indexes {
				s.log.Infof("applied index %s on %s", indexLabel(spec), s.collection)
			}
		}
	}

	s.coll = coll
	return coll, nil
}

// sweepLoop fires the first sweep after a short delay and every
// sweepInterval thereafter, until Close.
func (s *MongoSink) sweepLoop() {
	defer s.wg.Done()

	timer := time.NewTimer(s.sweepDelay)
	defer timer.Stop()

	select {
	case <-s.done:
		return
	case <-timer.C:
	}
	s.sweep()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep runs one retention cleanup and, when enabled, one field-discovery
// pass. The cutoff is recomputed from the current clock on every sweep so
// the retention window slides forward with time. All failures are logged
// and swallowed.
func (s *MongoSink) sweep() {
	ctx := context.Background()

	coll, err := s.resolve(ctx)
	if err != nil {
		s.log.Warnf("sweep: %v", err)
		return
	}

	if s.retention > 0 {
		cutoff := s.now().Add(-s.retention)
		n, err := coll.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			s.log.Warnf("retention sweep on %s: %v", s.collection, err)
		} else if s.verbose {
			s.log.Infof("retention sweep removed %d documents older than %s", n, cutoff.Format(time.RFC3339))
		}
	}

	if s.collectFields {
		into := s.collection + "_keys"
		if err := coll.CollectFieldNames(ctx, into); err != nil {
			s.log.Warnf("field discovery on %s: %v", s.collection, err)
		} else if s.verbose {
			s.log.Infof("collected field names into %s", into)
		}
	}
}

// indexLabel renders an index spec for diagnostics.
func indexLabel(spec store.IndexSpec) string {
	if spec.Name != "" {
		return spec.Name
	}
	label := ""
	for i, k := range spec.Keys {
		if i > 0 {
			label += ","
		}
		label += fmt.Sprintf("%s:%d", k.Field, k.Direction)
	}
	return "(" + label + ")"
}
