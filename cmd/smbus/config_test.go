package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adapters.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
adapters:
  - name: bridge0
    type: mcp2221
    timeout: 100ms
    retries: 2
    device_index: 0
  - name: soc
    type: generic
    device: /dev/i2c-2
`), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Adapters, 2)

	bridge, ok := cfg.adapter("bridge0")
	require.True(t, ok)
	assert.Equal(t, "mcp2221", bridge.Type)
	assert.Equal(t, "100ms", bridge.Timeout)
	assert.Equal(t, 2, bridge.Retries)
	require.NotNil(t, bridge.DeviceIndex)
	assert.Equal(t, 0, *bridge.DeviceIndex)

	soc, ok := cfg.adapter("soc")
	require.True(t, ok)
	assert.Equal(t, "/dev/i2c-2", soc.Device)
	assert.Nil(t, soc.DeviceIndex)

	_, ok = cfg.adapter("nope")
	assert.False(t, ok)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "could not read config file")

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("adapters: {broken"), 0o600))
	_, err = loadConfig(path)
	assert.ErrorContains(t, err, "could not parse config file")
}
