package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/lp-pricer/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for raw, want := range cases {
		got, err := parseLevel(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := parseLevel("verbose")
	require.Error(t, err)
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "indexer.log")
	logger, closeLogger, err := New("indexer", config.LogConfig{Level: "debug", Format: "json", Output: "file", FilePath: path})
	require.NoError(t, err)

	logger.Debug("valued pool", "pool", "RAY-USDC", "elapsed", 1500*time.Millisecond)
	require.NoError(t, closeLogger())

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"service":"indexer"`)
	assert.Contains(t, string(body), `"pool":"RAY-USDC"`)
	assert.Contains(t, string(body), `"elapsed":"1.5s"`)
}

func TestParseOutputs(t *testing.T) {
	cases := []struct {
		raw  string
		want []sink
	}{
		{raw: "", want: []sink{sinkConsole}},
		{raw: "STDERR", want: []sink{sinkStderr}},
		{raw: "both", want: []sink{sinkConsole, sinkFile}},
		{raw: "stderr, file", want: []sink{sinkStderr, sinkFile}},
		{raw: "both,console,file", want: []sink{sinkConsole, sinkFile}},
	}
	for _, tc := range cases {
		got, err := parseOutputs(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}

	_, err := parseOutputs("stderr,syslog")
	require.Error(t, err)
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, _, err := New("indexer", config.LogConfig{Format: "xml"})
	require.Error(t, err)

	_, _, err = New("indexer", config.LogConfig{Output: "syslog"})
	require.Error(t, err)
}
