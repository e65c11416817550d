package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(Config{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Debug("turn played", zap.String("student_id", "s1"), zap.Int("turn", 3))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "turn played", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "s1", entry["student_id"])
	assert.Equal(t, float64(3), entry["turn"])
	assert.Contains(t, entry, "ts")
}

func TestNewWithWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(Config{Level: "warn", Format: "console"}, &buf)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown")
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.True(t, strings.Contains(out, "WARN"))
}

func TestNewWithWriter_Defaults(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(Config{}, &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("shown")
	require.NoError(t, log.Sync())
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewWithWriter_Invalid(t *testing.T) {
	_, err := NewWithWriter(Config{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = NewWithWriter(Config{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}
