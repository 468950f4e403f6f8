// Package sink defines the Sink interface for pipeline output and its
// MongoDB and JSON Lines implementations.
package sink

import (
	"context"

	"github.com/Geun-Oh/logsink/internal/record"
)

// Sink receives records from the pipeline and writes them to an output
// destination.
type Sink interface {
	// Write persists a single record.
	Write(ctx context.Context, rec record.Record) error

	// Flush ensures all buffered output is written.
	Flush() error

	// Close releases resources held by the sink.
	Close() error

	// Name returns a human-readable identifier for this sink.
	Name() string
}
