package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/Geun-Oh/logsink/internal/parser"
	"github.com/Geun-Oh/logsink/internal/record"
)

// DockerSource reads records from a Docker container via `docker logs --follow`.
type DockerSource struct {
	container string
	follow    bool
	grok      *parser.GrokParser
}

// NewDockerSource creates a source that reads from a Docker container's logs.
func NewDockerSource(container string, follow bool, grok *parser.GrokParser) *DockerSource {
	return &DockerSource{
		container: container,
		follow:    follow,
		grok:      grok,
	}
}

// Name returns the source identifier.
func (s *DockerSource) Name() string {
	return fmt.Sprintf("docker:%s", s.container)
}

// Start executes `docker logs` and returns a channel of records.
func (s *DockerSource) Start(ctx context.Context) (<-chan record.Record, error) {
	args := []string{"logs"}
	if s.follow {
		args = append(args, "--follow")
	}
	args = append(args, "--timestamps", s.container)

	cmd := exec.CommandContext(ctx, "docker", args...)

	// Docker sends stdout and stderr interleaved via stderr when using --follow.
	// Capture both.
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("docker stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("docker stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("docker logs start: %w (is docker running?)", err)
	}

	ch := make(chan record.Record, 256)

	go func() {
		defer close(ch)

		done := make(chan struct{}, 2)

		read := func(stream string, pipe io.Reader) {
			defer func() { done <- struct{}{} }()
			scanner := bufio.NewScanner(pipe)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				select {
				case <-ctx.Done():
					return
				default:
				}
				ts, msg := parseDockerTimestamp(scanner.Text())
				rec := decodeLine(msg, s.grok)
				if rec == nil {
					continue
				}
				// The docker timestamp wins over the wall clock but not
				// over a timestamp carried inside the record itself.
				if _, ok := rec[record.FieldEpochtime]; !ok {
					if _, ok := rec[record.FieldDate]; !ok {
						rec[record.FieldDate] = ts.Format(time.RFC3339Nano)
					}
				}
				if _, ok := rec["stream"]; !ok {
					rec["stream"] = stream
				}
				ch <- rec
			}
		}

		go read("stdout", stdoutPipe)
		go read("stderr", stderrPipe)

		// Wait for both readers.
		<-done
		<-done
		_ = cmd.Wait()
	}()

	return ch, nil
}

// parseDockerTimestamp extracts the timestamp from a Docker log line.
// Docker --timestamps format: "2025-01-26T13:32:19.123456789Z message..."
func parseDockerTimestamp(line string) (time.Time, string) {
	if len(line) < 31 {
		return time.Now(), line
	}

	// Try RFC3339Nano (Docker's format).
	tsStr := line[:30]
	ts, err := time.Parse(time.RFC3339Nano, tsStr)
	if err != nil {
		return time.Now(), line
	}

	msg := line[31:] // skip timestamp + space
	return ts, msg
}
