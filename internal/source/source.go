// Package source defines the Source interface and common utilities for record input.
package source

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Geun-Oh/logsink/internal/parser"
	"github.com/Geun-Oh/logsink/internal/record"
)

// Source reads input data and emits Record values on a channel.
// Implementations must close the returned channel when the source is exhausted
// or the context is cancelled.
type Source interface {
	// Start begins reading from the source. The returned channel will receive
	// records until the source is exhausted or ctx is cancelled.
	// The implementation must close the channel when done.
	Start(ctx context.Context) (<-chan record.Record, error)

	// Name returns a human-readable identifier for this source.
	Name() string
}

// decodeLine turns one raw input line into a Record. A line holding a JSON
// object becomes that object; otherwise the grok parser, when configured,
// gets a shot; anything else is wrapped as a bare message. Blank lines
// yield nil.
func decodeLine(line string, grok *parser.GrokParser) record.Record {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var rec record.Record
		if err := json.Unmarshal([]byte(trimmed), &rec); err == nil {
			return rec
		}
		// A brace-prefixed line that is not valid JSON is still a log line.
	}

	if grok != nil {
		if rec, ok := grok.Parse(line); ok {
			return rec
		}
	}

	return record.Record{record.FieldMessage: line}
}
