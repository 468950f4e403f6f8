// Package monitor provides real-time statistics collection for the pipeline.
package monitor

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats collects pipeline processing metrics in a lock-free manner.
type Stats struct {
	received  atomic.Uint64
	delivered atomic.Uint64
	startTime time.Time
}

// NewStats creates a new statistics collector.
func NewStats() *Stats {
	return &Stats{
		startTime: time.Now(),
	}
}

// RecordReceived increments the received record counter.
func (s *Stats) RecordReceived() {
	s.received.Add(1)
}

// RecordDelivered increments the delivered record counter.
func (s *Stats) RecordDelivered() {
	s.delivered.Add(1)
}

// Received returns the total number of records read from the source.
func (s *Stats) Received() uint64 {
	return s.received.Load()
}

// Delivered returns the total number of records handed to the sinks.
func (s *Stats) Delivered() uint64 {
	return s.delivered.Load()
}

// Elapsed returns the time since monitoring started.
func (s *Stats) Elapsed() time.Duration {
	return time.Since(s.startTime)
}

// Rate returns the current records per second.
func (s *Stats) Rate() float64 {
	elapsed := s.Elapsed().Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(s.Received()) / elapsed
}

// Summary returns a formatted summary string.
func (s *Stats) Summary() string {
	elapsed := s.Elapsed()
	received := s.Received()
	delivered := s.Delivered()

	deliveredRate := float64(0)
	if received > 0 {
		deliveredRate = float64(delivered) / float64(received) * 100
	}

	return fmt.Sprintf(
		"── logsink run ──\n"+
			"  Records in:    %d\n"+
			"  Records out:   %d (%.1f%%)\n"+
			"  Elapsed:       %s\n"+
			"  Throughput:    %.0f records/s\n"+
			"─────────────────",
		received, delivered, deliveredRate,
		elapsed.Round(time.Millisecond),
		s.Rate(),
	)
}
