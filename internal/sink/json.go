package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Geun-Oh/logsink/internal/record"
)

// JSONSink writes normalized documents as JSON Lines (one object per line).
// It is the dry-run stand-in for the mongo sink: records pass through the
// same normalization but land on a writer instead of a collection.
type JSONSink struct {
	w   io.Writer
	enc *json.Encoder
	now func() time.Time
}

// NewJSONSink creates a JSON Lines sink writing to the given writer.
func NewJSONSink(w io.Writer) *JSONSink {
	if w == nil {
		w = os.Stdout
	}
	return &JSONSink{
		w:   w,
		enc: json.NewEncoder(w),
		now: time.Now,
	}
}

// Write normalizes a record and serializes the document as a single JSON line.
func (s *JSONSink) Write(_ context.Context, rec record.Record) error {
	if len(rec) == 0 {
		return nil
	}
	return s.enc.Encode(record.Normalize(rec, s.now()))
}

// Flush is a no-op for JSON sink.
func (s *JSONSink) Flush() error { return nil }

// Close is a no-op for JSON sink.
func (s *JSONSink) Close() error { return nil }

// Name returns the sink identifier.
func (s *JSONSink) Name() string { return "json" }

// FileSink writes normalized documents to a file as JSON Lines.
type FileSink struct {
	inner Sink
	file  *os.File
}

// NewFileSink creates a sink that writes to the given file path.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open output file %s: %w", path, err)
	}
	return &FileSink{inner: NewJSONSink(f), file: f}, nil
}

// Write delegates to the inner sink.
func (s *FileSink) Write(ctx context.Context, rec record.Record) error {
	return s.inner.Write(ctx, rec)
}

// Flush syncs the file to disk.
func (s *FileSink) Flush() error {
	return s.file.Sync()
}

// Close flushes and closes the file.
func (s *FileSink) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}

// Name returns the sink identifier.
func (s *FileSink) Name() string {
	return "file:" + s.file.Name()
}
