package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromString(t *testing.T) {
	tests := []struct {
		name      string
		levelStr  string
		wantLevel Level
	}{
		{"debug", "debug", LevelDebug},
		{"info", "info", LevelInfo},
		{"warn", "warn", LevelWarn},
		{"error", "error", LevelError},
		{"uppercase", "DEBUG", LevelDebug},
		{"unknown defaults to info", "bogus", LevelInfo},
		{"empty defaults to info", "", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewFromString(tt.levelStr, nil)
			require.NotNil(t, logger)
			assert.Equal(t, tt.wantLevel, logger.GetLevel())
		})
	}
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(LevelWarn, &buf)

	logger.Debug("debug %d", 1)
	logger.Info("info %d", 2)
	assert.Empty(t, buf.String())

	logger.Warn("warn %d", 3)
	assert.Contains(t, buf.String(), "[WARN] warn 3")

	buf.Reset()
	logger.Error("error %d", 4)
	assert.Contains(t, buf.String(), "[ERROR] error 4")
}

func TestLoggerWithRunIDPrefixesMessages(t *testing.T) {
	var buf bytes.Buffer
	logger := New(LevelInfo, &buf).WithRunID("run-42")

	logger.Info("saved artifact")
	assert.Contains(t, buf.String(), "run_id=run-42")
	assert.Contains(t, buf.String(), "saved artifact")
}

func TestLoggerWithoutRunIDOmitsPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := New(LevelInfo, &buf)

	logger.Info("saved artifact")
	assert.NotContains(t, buf.String(), "run_id=")
}

func TestLoggerWithRunIDPreservesLevel(t *testing.T) {
	logger := New(LevelWarn, nil).WithRunID("run-1")
	assert.Equal(t, LevelWarn, logger.GetLevel())
}

func TestLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(LevelError, &buf)
	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.SetLevel(LevelInfo)
	logger.Info("visible")
	assert.True(t, strings.Contains(buf.String(), "visible"))
}
