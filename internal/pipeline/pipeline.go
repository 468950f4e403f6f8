// Package pipeline orchestrates Source → Sink processing.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/Geun-Oh/logsink/internal/monitor"
	"github.com/Geun-Oh/logsink/internal/sink"
	"github.com/Geun-Oh/logsink/internal/source"
)

// Config holds pipeline configuration.
type Config struct {
	Source      source.Source
	Sinks       []sink.Sink
	Stats       *monitor.Stats
	ShowSummary bool
}

// Run executes the pipeline: reads from the source and writes each record to
// the sinks in delivery order. Blocks until the source is exhausted or ctx is
// cancelled.
//
// Sinks swallow their own per-record failures; an error returned from a sink
// is fatal (the mongo sink only surfaces authentication rejection) and aborts
// the run.
func Run(ctx context.Context, cfg *Config) error {
	if cfg.Source == nil {
		return fmt.Errorf("pipeline: source is required")
	}
	if len(cfg.Sinks) == 0 {
		return fmt.Errorf("pipeline: at least one sink is required")
	}

	// Flush and close sinks on every exit path: a fatal sink error must
	// still stop the mongo sink's sweeps and sync file output.
	defer func() {
		for _, s := range cfg.Sinks {
			_ = s.Flush()
			_ = s.Close()
		}
	}()

	ch, err := cfg.Source.Start(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: start source: %w", err)
	}

	for rec := range ch {
		if cfg.Stats != nil {
			cfg.Stats.RecordReceived()
		}

		if len(rec) == 0 {
			continue
		}

		for _, s := range cfg.Sinks {
			if err := s.Write(ctx, rec); err != nil {
				return fmt.Errorf("pipeline: write to %s: %w", s.Name(), err)
			}
		}

		if cfg.Stats != nil {
			cfg.Stats.RecordDelivered()
		}
	}

	// Print summary if requested.
	if cfg.ShowSummary && cfg.Stats != nil {
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, cfg.Stats.Summary())
	}

	return nil
}
