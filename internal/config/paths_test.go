package config

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigDirXDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG paths are Linux-only")
	}

	t.Setenv("XDG_CONFIG_HOME", "/custom/xdg")

	assert.Equal(t, filepath.Join("/custom/xdg", appName), DefaultConfigDir())
}

func TestDefaultConfigDirFallback(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG paths are Linux-only")
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/alice")

	assert.Equal(t, filepath.Join("/home/alice", ".config", appName), DefaultConfigDir())
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()
	require.NotEmpty(t, path)
	assert.Equal(t, configFileName, filepath.Base(path))
	assert.Contains(t, path, appName)
}
