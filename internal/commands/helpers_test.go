package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLag(t *testing.T) {
	assert.Equal(t, "45s", formatLag(45))
	assert.Equal(t, "2m05s", formatLag(125))
	assert.Equal(t, "3h00m", formatLag(3*3600))
}

func TestRunInit_ScaffoldsConfig(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "demo")

	require.NoError(t, runInit(project))

	data, err := os.ReadFile(filepath.Join(project, "siphon.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "coldStore:")
	assert.Contains(t, string(data), "tableName: siphon-state")

	// A second init must not clobber an existing config.
	err = runInit(project)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestBuildDeps_MissingConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := buildDeps(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}
