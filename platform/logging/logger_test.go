package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_JSONAddsServiceFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{ServiceName: "order", Env: "docker", Output: &buf})
	require.NoError(t, err)

	logger.Info("hello")
	Sync(logger)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "order", line["service"])
	require.Equal(t, "docker", line["env"])
	require.Equal(t, "hello", line["msg"])
}

func TestNew_LevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{ServiceName: "inventory", Env: "docker", Level: "warn", Output: &buf})
	require.NoError(t, err)

	logger.Info("dropped")
	require.Zero(t, buf.Len())

	logger.Warn("kept")
	require.Contains(t, buf.String(), "kept")
}

func TestNew_InvalidSettings(t *testing.T) {
	_, err := New(Config{Level: "verbose"})
	require.Error(t, err)

	_, err = New(Config{Format: "xml"})
	require.Error(t, err)
}
