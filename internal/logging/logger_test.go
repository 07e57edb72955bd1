package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"tillsync/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileOutputCarriesDeviceFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tillsync.log")

	logger, closer, err := New(config.LoggingConfig{
		Level:    "debug",
		Format:   "json",
		Output:   "file",
		FilePath: path,
	}, config.AppConfig{Name: "tillsync", Environment: "test", DeviceID: "till-4"})
	require.NoError(t, err)
	require.NotNil(t, closer)

	logger.Info().Str("local_id", "local-1").Msg("order enqueued")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "till-4", line["device"])
	assert.Equal(t, "tillsync", line["app"])
	assert.Equal(t, "order enqueued", line["message"])
}

func TestNewLevelAndOutputHandling(t *testing.T) {
	logger, closer, err := New(config.LoggingConfig{Level: "warn"}, config.AppConfig{})
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	// Garbage levels fall back to info instead of failing boot.
	logger, _, err = New(config.LoggingConfig{Level: "chatty"}, config.AppConfig{})
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	_, _, err = New(config.LoggingConfig{Output: "file"}, config.AppConfig{})
	assert.Error(t, err, "file output requires a path")

	_, _, err = New(config.LoggingConfig{Output: "syslog"}, config.AppConfig{})
	assert.Error(t, err, "unknown outputs are rejected at boot")
}
