package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	l, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)

	l.Debug().Int("month", 3).Msg("month done")
	require.NoError(t, l.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"month":3`)
	assert.Contains(t, string(raw), `"message":"month done"`)
}

func TestNew_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	l, err := New(Config{Level: "warn", File: path})
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, l.GetLevel())

	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	require.NoError(t, l.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hidden")
	assert.Contains(t, string(raw), "shown")
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"loud"`)

	l, err := New(Config{Level: "WARN"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, l.GetLevel())
	assert.NoError(t, l.Close())
}

func TestNew_EmptyLevelIsInfo(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
	assert.NoError(t, l.Close())
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error().Msg("dropped")
	assert.NoError(t, l.Close())
}
