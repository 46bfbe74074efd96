package core

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		"info":    LevelInfo,
		"":        LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("critical")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoggerWithDedupesRepeatedKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelDebug)

	scoped := logger.With("collection", "a").With("collection", "b", "op", "search")
	scoped.Info("hit")

	line := buf.String()
	assert.Equal(t, 1, strings.Count(line, "collection="))
	assert.Contains(t, line, "collection=b")
	assert.Contains(t, line, "op=search")
}

func TestLoggerDropsBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelWarn)

	logger.Debug("ignored")
	logger.Info("ignored too")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNopLoggerDiscardsEverything(t *testing.T) {
	logger := NopLogger()
	logger.Debug("x")
	logger.Info("x")
	logger.Warn("x")
	logger.Error("x")
	assert.Equal(t, logger, logger.With("k", "v").With("k", "v"))
}
