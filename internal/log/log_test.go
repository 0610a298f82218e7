package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	l := WithInstance(WithComponent("fleet"), 3)
	l.Info().Msg("started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "fleet", entry["component"])
	assert.Equal(t, float64(3), entry["instance_id"])
	assert.Equal(t, "started", entry["message"])
}

func TestInitLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	Logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	Logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLevelFallsBackToInfo(t *testing.T) {
	tests := []struct {
		level Level
		want  zerolog.Level
	}{
		{DebugLevel, zerolog.DebugLevel},
		{ErrorLevel, zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.zerolog())
		})
	}
}

func TestInitConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, Output: &buf})

	Logger.Info().Str("mode", "memory").Msg("engine ready")
	assert.Contains(t, buf.String(), "engine ready")
	assert.Contains(t, buf.String(), "mode=")
	assert.NotContains(t, buf.String(), `"message"`)
}
