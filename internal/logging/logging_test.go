package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warning": slog.LevelWarn, "error": slog.LevelError} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "warn", Writer: &buf})
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("retrying request", "endpoint", "tweets", "attempt", 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "retrying request", line["msg"])
	assert.Equal(t, "tweets", line["endpoint"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Format: "text", Writer: &buf})
	require.NoError(t, err)
	l.Info("collected", "saved", 3)
	assert.Contains(t, buf.String(), "saved=3")

	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}
