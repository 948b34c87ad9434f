package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger(LevelWarn, &buf)

	logger.Debug("debug %d", 1)
	logger.Info("info %d", 2)
	assert.Empty(t, buf.String(), "messages below the level are discarded")

	logger.Warn("warn %d", 3)
	logger.Error("error %d", 4)
	out := buf.String()
	assert.Contains(t, out, "[WARN] warn 3")
	assert.Contains(t, out, "[ERROR] error 4")
}

func TestDefaultLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger(LevelError, &buf)

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.SetLevel(LevelDebug)
	logger.Info("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestDefaultLogger_WithField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger(LevelInfo, &buf)

	scoped := logger.WithField("cache", "base").WithField("batch", 4)
	scoped.Info("compiled")

	out := buf.String()
	assert.Contains(t, out, "batch=4 cache=base", "fields are sorted by key")

	buf.Reset()
	logger.Info("plain")
	assert.NotContains(t, buf.String(), "cache=", "parent logger is unchanged")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLogLevel("WARN"))
	assert.Equal(t, LevelError, ParseLogLevel("error"))
	assert.Equal(t, LevelInfo, ParseLogLevel("anything"))
}

func TestNullLogger(t *testing.T) {
	var l Logger = &NullLogger{}
	l.Debug("a")
	l.Info("b")
	l.Warn("c")
	l.Error("d")
	assert.Same(t, l, l.WithField("k", "v"))
}
