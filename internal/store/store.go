// Package store abstracts the document database behind narrow interfaces so
// the mongo sink can be exercised without a live server.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrAuthentication reports a rejected credential at connect time. It is the
// only store failure the sink surfaces to its caller.
var ErrAuthentication = errors.New("mongodb authentication failure")

// IndexKey is one (field, direction) pair of an index definition.
// Direction is 1 for ascending, -1 for descending.
type IndexKey struct {
	Field     string
	Direction int
}

// IndexSpec is an ordered index definition applied once per collection.
type IndexSpec struct {
	Name   string
	Unique bool
	Keys   []IndexKey
}

// Collection is a handle to a named collection.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// InsertOne persists a single document.
	InsertOne(ctx context.Context, doc any) error

	// DeleteOlderThan removes documents whose timestamp field is before
	// cutoff and returns the number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// EnsureIndexes applies the given index definitions. Reapplying an
	// identical definition is a no-op on the server side.
	EnsureIndexes(ctx context.Context, specs []IndexSpec) error

	// CollectFieldNames emits every distinct top-level field name of the
	// collection into the named companion collection.
	CollectFieldNames(ctx context.Context, into string) error
}

// Store owns the connection to a document database.
type Store interface {
	// Connect dials and authenticates. Called once; the connection is held
	// for the store's lifetime.
	Connect(ctx context.Context) error

	// Collection returns a handle to the named collection. Valid only after
	// a successful Connect.
	Collection(name string) Collection

	// Close releases the connection.
	Close(ctx context.Context) error
}
