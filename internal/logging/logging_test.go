package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "vaultsearch.log")

	logger, cleanup, err := Setup(DefaultConfig("info", path))
	require.NoError(t, err)

	logger.Info("daemon ready", "documents", 42)
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "daemon ready", entry["msg"])
	assert.Equal(t, float64(42), entry["documents"])
}

func TestSetupRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	logger, cleanup, err := Setup(DefaultConfig("warn", path))
	require.NoError(t, err)

	logger.Info("should be dropped")
	logger.Warn("should appear")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should be dropped")
	assert.Contains(t, string(data), "should appear")
}

func TestSetupWithoutFileUsesStderr(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "debug"})
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelInfo, parseLevel("unknown"))
}

func TestRotatingWriterRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r.log")

	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	// Force a tiny rotation threshold.
	w.maxSize = 64

	line := []byte(strings.Repeat("x", 40) + "\n")
	for i := 0; i < 5; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err, "rotated file should exist")
}
