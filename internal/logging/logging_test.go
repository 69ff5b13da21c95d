package logging_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clickstream/internal/config"
	"clickstream/internal/logging"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logging.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, logging.ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, logging.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel("verbose"))
}

func TestSetDebugToggle(t *testing.T) {
	logger := logging.NewLogger(logging.Config{Level: "warn", Quiet: true})
	assert.Equal(t, slog.LevelWarn, logger.Level())

	logger.SetDebug(true)
	assert.Equal(t, slog.LevelDebug, logger.Level())

	logger.SetDebug(false)
	assert.Equal(t, slog.LevelWarn, logger.Level())
}

func TestDebugConfigStartsAtDebugLevel(t *testing.T) {
	cfg := config.Defaults()
	cfg.Debug = true
	logger := logging.NewLogger(logging.FromConfig(cfg))
	assert.Equal(t, slog.LevelDebug, logger.Level())
}

func TestWritesToRotatingFile(t *testing.T) {
	dir := t.TempDir()
	logger := logging.NewLogger(logging.Config{Level: "info", LogDir: dir, MaxSizeMB: 1, Quiet: true})

	logger.Info("Event recorded", slog.String("event_type", "_app_start"))
	logger.Debug("Hidden at info level")
	require.NoError(t, logger.Close())

	content, err := os.ReadFile(filepath.Join(dir, logging.FileName))
	require.NoError(t, err)
	assert.Contains(t, string(content), "event_type=_app_start")
	assert.NotContains(t, string(content), "Hidden at info level")
}
