package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Geun-Oh/logsink/internal/monitor"
	"github.com/Geun-Oh/logsink/internal/record"
	"github.com/Geun-Oh/logsink/internal/sink"
)

// chanSource feeds a fixed set of records.
type chanSource struct {
	records []record.Record
}

func (s *chanSource) Name() string { return "test" }

func (s *chanSource) Start(context.Context) (<-chan record.Record, error) {
	ch := make(chan record.Record, len(s.records))
	for _, r := range s.records {
		ch <- r
	}
	close(ch)
	return ch, nil
}

// captureSink records writes in order.
type captureSink struct {
	written  []record.Record
	writeErr error
	flushed  bool
	closed   bool
}

func (s *captureSink) Write(_ context.Context, rec record.Record) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.written = append(s.written, rec)
	return nil
}

func (s *captureSink) Flush() error { s.flushed = true; return nil }
func (s *captureSink) Close() error { s.closed = true; return nil }
func (s *captureSink) Name() string { return "capture" }

func TestRunDeliversInOrder(t *testing.T) {
	src := &chanSource{records: []record.Record{
		{"n": 1}, {"n": 2}, {"n": 3},
	}}
	cap := &captureSink{}
	stats := monitor.NewStats()

	err := Run(context.Background(), &Config{
		Source: src,
		Sinks:  []sink.Sink{cap},
		Stats:  stats,
	})
	require.NoError(t, err)

	require.Len(t, cap.written, 3)
	assert.Equal(t, 1, cap.written[0]["n"])
	assert.Equal(t, 3, cap.written[2]["n"])
	assert.Equal(t, uint64(3), stats.Received())
	assert.Equal(t, uint64(3), stats.Delivered())
	assert.True(t, cap.flushed)
	assert.True(t, cap.closed)
}

func TestRunSkipsEmptyRecords(t *testing.T) {
	src := &chanSource{records: []record.Record{
		{}, {"n": 1}, nil,
	}}
	cap := &captureSink{}
	stats := monitor.NewStats()

	err := Run(context.Background(), &Config{
		Source: src,
		Sinks:  []sink.Sink{cap},
		Stats:  stats,
	})
	require.NoError(t, err)

	assert.Len(t, cap.written, 1)
	assert.Equal(t, uint64(3), stats.Received())
	assert.Equal(t, uint64(1), stats.Delivered())
}

func TestRunAbortsOnSinkError(t *testing.T) {
	src := &chanSource{records: []record.Record{{"n": 1}}}
	cap := &captureSink{writeErr: errors.New("authentication failure")}

	err := Run(context.Background(), &Config{
		Source: src,
		Sinks:  []sink.Sink{cap},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture")

	// Even the fatal path must release the sinks, or background sweeps
	// and open file handles leak.
	assert.True(t, cap.flushed)
	assert.True(t, cap.closed)
}

func TestRunRequiresSourceAndSink(t *testing.T) {
	err := Run(context.Background(), &Config{})
	require.Error(t, err)

	err = Run(context.Background(), &Config{Source: &chanSource{}})
	require.Error(t, err)
}
