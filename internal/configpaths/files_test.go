package configpaths_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/lt3/internal/configpaths"
)

func TestConfigCandidatePaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)

	jsonPaths, yamlPaths, tomlPaths := configpaths.ConfigCandidatePaths("/tmp/custom.toml")
	require.NotEmpty(t, tomlPaths)
	assert.Equal(t, "/tmp/custom.toml", tomlPaths[0])
	assert.Contains(t, jsonPaths, filepath.Join(home, "lt3", "config.json"))
	assert.Contains(t, yamlPaths, filepath.Join(home, "lt3", "run.yml"))

	jsonPaths, _, _ = configpaths.ConfigCandidatePaths("settings")
	assert.Equal(t, "settings", jsonPaths[0])
}

func TestDefaultConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	dir, err := configpaths.DefaultConfigDir()
	require.NoError(t, err)
	if filepath.Separator == '/' {
		assert.Equal(t, "/xdg/lt3", dir)
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "yaml", configpaths.Extension("yml"))
	assert.Equal(t, "toml", configpaths.Extension("toml"))
	assert.Equal(t, "json", configpaths.Extension(""))
}
