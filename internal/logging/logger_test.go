package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"":        zerolog.InfoLevel,
		"loud":    zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewWritesJSONFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var console bytes.Buffer
	logger, err := New(Config{Dir: dir, Level: "info", Console: true, File: true, ConsoleOut: &console})
	require.NoError(t, err)

	log := logger.Component("interrupt")
	log.Info().Str("session_id", "abc").Msg("transmission cut")
	log.Debug().Msg("filtered")
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	require.True(t, strings.HasPrefix(logger.Path(), dir))
	data, err := os.ReadFile(logger.Path())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "gaslightradio", entry["app"])
	assert.Equal(t, "interrupt", entry["component"])
	assert.Equal(t, "abc", entry["session_id"])
	assert.Equal(t, "transmission cut", entry["message"])

	assert.Contains(t, console.String(), "transmission cut")
	assert.NotContains(t, console.String(), "filtered")
}

func TestNewWithoutOutputs(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Level: "debug"})
	require.NoError(t, err)
	assert.Empty(t, logger.Path())
	zl := logger.Zerolog()
	zl.Info().Msg("discarded")
	assert.NoError(t, logger.Close())
}
