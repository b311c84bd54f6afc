package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

func TestBuildWritesSeverity(t *testing.T) {
	var buf bytes.Buffer
	lg := build(&buf, false, "info")
	lg.Debug().Msg("dropped")
	lg.Warn().Str("event_id", "evt_1").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["severity"])
	assert.Equal(t, "evt_1", entry["event_id"])
	assert.Equal(t, serviceName, entry["app"])
	assert.Equal(t, "kept", entry["message"])
}
