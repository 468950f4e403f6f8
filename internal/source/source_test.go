package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Geun-Oh/logsink/internal/parser"
	"github.com/Geun-Oh/logsink/internal/record"
)

func TestDecodeLineJSON(t *testing.T) {
	rec := decodeLine(`{"type":"app","message":"hi","status":200}`, nil)

	require.NotNil(t, rec)
	assert.Equal(t, "app", rec["type"])
	assert.Equal(t, "hi", rec["message"])
	assert.Equal(t, float64(200), rec["status"])
}

func TestDecodeLinePlainText(t *testing.T) {
	rec := decodeLine("just a log line", nil)

	assert.Equal(t, record.Record{"message": "just a log line"}, rec)
}

func TestDecodeLineMalformedJSON(t *testing.T) {
	rec := decodeLine(`{"type": oops`, nil)

	assert.Equal(t, record.Record{"message": `{"type": oops`}, rec)
}

func TestDecodeLineBlank(t *testing.T) {
	assert.Nil(t, decodeLine("", nil))
	assert.Nil(t, decodeLine("   \t", nil))
}

func TestDecodeLineGrok(t *testing.T) {
	g, err := parser.NewGrokParser("%{LOGLEVEL:level} %{GREEDYDATA:body}")
	require.NoError(t, err)

	rec := decodeLine("ERROR out of memory", g)

	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "out of memory", rec["body"])
	assert.Equal(t, "ERROR out of memory", rec["message"])
}

func TestFileSourceReadsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.log")
	content := `{"type":"a","message":"one"}` + "\n" +
		"\n" +
		"plain line\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	src := NewFileSource(path, false, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := src.Start(ctx)
	require.NoError(t, err)

	var got []record.Record
	for rec := range ch {
		got = append(got, rec)
	}

	require.Len(t, got, 2)
	assert.Equal(t, "one", got[0]["message"])
	assert.Equal(t, "plain line", got[1]["message"])
}

func TestFileSourceMissingFile(t *testing.T) {
	src := NewFileSource("/does/not/exist.log", false, nil)

	_, err := src.Start(context.Background())
	require.Error(t, err)
}

func TestExecSourceStreamsOutput(t *testing.T) {
	src := NewExecSource("sh", []string{"-c", `echo '{"message":"from exec"}'`}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := src.Start(ctx)
	require.NoError(t, err)

	var got []record.Record
	for rec := range ch {
		got = append(got, rec)
	}

	require.Len(t, got, 1)
	assert.Equal(t, "from exec", got[0]["message"])
	assert.Equal(t, "stdout", got[0]["stream"])
}
