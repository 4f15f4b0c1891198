package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "warn"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}

func TestNewLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "loud"}, &buf)

	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}

func TestSampleEveryKeepsOneInN(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "info", SampleEvery: 2}, &buf)

	for i := 0; i < 4; i++ {
		logger.Info().Int("i", i).Msg("tick")
	}

	require.Equal(t, 2, strings.Count(buf.String(), "\n"))
}

func TestLogWriterFormatSelection(t *testing.T) {
	_, console := logWriter(Config{Format: "console"}).(zerolog.ConsoleWriter)
	require.True(t, console)

	_, console = logWriter(Config{PrettyPrint: true}).(zerolog.ConsoleWriter)
	require.True(t, console)

	_, console = logWriter(Config{Format: "json"}).(zerolog.ConsoleWriter)
	require.False(t, console)
}
