package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestDeadLetterTagsRecords(t *testing.T) {
	var buf bytes.Buffer
	log := NewDeadLetter(NewWithWriter(&buf, "info"))
	log.Error("audit record dropped", "record_id", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit_dead_letter", entry["log_type"])
	assert.Equal(t, "phiguard", entry["service"])
	assert.Equal(t, "abc", entry["record_id"])
}
