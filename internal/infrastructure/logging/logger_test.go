package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewWritesJSONThroughAsyncSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spectra.log")

	cfg := DefaultConfig()
	cfg.OutputPaths = []string{path}
	logger, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger.async)

	logger.Warn("display too slow", zap.Int("length", 3))
	logger.Warn("display too slow", zap.Int("length", 3))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"display too slow"`)
	assert.Contains(t, string(data), `"repeated":2`)
	assert.Zero(t, logger.Dropped())
}

func TestNewSynchronous(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spectra.log")

	cfg := DevelopmentConfig()
	cfg.Async = false
	cfg.OutputPaths = []string{path}
	logger, err := New(cfg)
	require.NoError(t, err)
	assert.Nil(t, logger.async)

	logger.Debug("stage initialized")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stage initialized")
}
