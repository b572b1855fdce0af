package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
		want  zerolog.Level
	}{
		{"info by default", false, zerolog.InfoLevel},
		{"debug when enabled", true, zerolog.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := newLogger(&buf, "runner", tt.debug)
			assert.Equal(t, tt.want, log.GetLevel())
		})
	}
}

func TestNewLoggerServiceField(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "api", false)
	log.Info().Str("project", "demo").Msg("accepted")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "api", entry["service"])
	assert.Equal(t, "demo", entry["project"])
	assert.Equal(t, "accepted", entry["message"])
}

func TestInitWithFileEmptyDirFallsBack(t *testing.T) {
	require.NoError(t, InitWithFile("runner", false, "", FileConfig{}))
	assert.Nil(t, fileWriter)
}

func TestInitWithFileCreatesWriter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitWithFile("runner", true, dir, FileConfig{MaxSizeMB: 5}))
	t.Cleanup(func() { _ = Close() })

	require.NotNil(t, fileWriter)
	assert.Contains(t, fileWriter.Filename, "runner.log")
	assert.Equal(t, 5, fileWriter.MaxSize)
	assert.Equal(t, 7, fileWriter.MaxAge)
	assert.Equal(t, 3, fileWriter.MaxBackups)
}
