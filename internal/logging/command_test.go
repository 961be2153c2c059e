package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "failed to parse log output")
	return entry
}

func TestCommandLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		log   func(*CommandLogger)
		want  map[string]any
	}{
		{
			level: "debug",
			log:   func(l *CommandLogger) { l.Debug("handling command", "command", ":MAP:LOAD:", "args", 1) },
			want:  map[string]any{"message": "handling command", "command": ":MAP:LOAD:", "args": float64(1)},
		},
		{
			level: "info",
			log:   func(l *CommandLogger) { l.Info("dispatcher ready", "commands", 6) },
			want:  map[string]any{"message": "dispatcher ready", "commands": float64(6)},
		},
		{
			level: "error",
			log:   func(l *CommandLogger) { l.Error("queued command failed", "command", ":MAP:LOAD:", "error", "no such map") },
			want:  map[string]any{"message": "queued command failed", "command": ":MAP:LOAD:", "error": "no such map"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(NewCommandLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))

			entry := decodeLine(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "dispatcher", entry["component"])
			for k, v := range tt.want {
				assert.Equal(t, v, entry[k], k)
			}
		})
	}
}

func TestCommandLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	dl := NewCommandLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	dl.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestCommandLogger_DanglingKey(t *testing.T) {
	var buf bytes.Buffer
	dl := NewCommandLogger(zerolog.New(&buf))

	dl.Info("simple message", "dangling", 7, "key")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "simple message", entry["message"])
	assert.Equal(t, float64(7), entry["dangling"])
	assert.NotContains(t, entry, "key")
}
