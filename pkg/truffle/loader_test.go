package truffle

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigNotFound(t *testing.T) {
	dir := t.TempDir()

	_, _, err := Load(dir, DefaultDirectories())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

func TestLoadPrefersTruffleConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "truffle.js"), []byte(referenceCfgContent), 0o644))

	cfg, path, err := Load(dir, DefaultDirectories())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "truffle.js"), path)
	require.Len(t, cfg.Networks, 1)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "truffle-config.js"), []byte(referenceCfgContentWithDirectories), 0o644))
	cfg, path, err = Load(dir, DefaultDirectories())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "truffle-config.js"), path)
	assert.Len(t, cfg.Networks, 2)
	assert.Equal(t, filepath.Join(dir, "build"), cfg.BuildDirectory(dir))
}

func TestLoadParseError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "truffle-config.js"), []byte("module.exports = 42;"), 0o644))

	_, path, err := Load(dir, DefaultDirectories())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigParse))
	assert.Equal(t, filepath.Join(dir, "truffle-config.js"), path)
}
