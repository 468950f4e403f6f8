package source

import (
	"bufio"
	"context"
	"os"

	"github.com/Geun-Oh/logsink/internal/parser"
	"github.com/Geun-Oh/logsink/internal/record"
)

// StdinSource reads records from os.Stdin (pipe mode), one per line.
type StdinSource struct {
	grok *parser.GrokParser
}

// NewStdinSource creates a source that reads from stdin. The optional grok
// parser structures plain-text lines.
func NewStdinSource(grok *parser.GrokParser) *StdinSource {
	return &StdinSource{grok: grok}
}

// Name returns the source identifier.
func (s *StdinSource) Name() string {
	return "stdin"
}

// Start reads from stdin and returns a channel of records.
func (s *StdinSource) Start(ctx context.Context) (<-chan record.Record, error) {
	ch := make(chan record.Record, 256)

	go func() {
		defer close(ch)

		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			rec := decodeLine(scanner.Text(), s.grok)
			if rec == nil {
				continue
			}
			ch <- rec
		}
	}()

	return ch, nil
}
