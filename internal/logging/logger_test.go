package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}

	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestNewJSON_RenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSON(&buf, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Warn("Fallback fetch failed", "error", errors.New("boom"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Fallback fetch failed", line["msg"])
	assert.Equal(t, "boom", line["err"])
	assert.NotContains(t, line, "error")
}
