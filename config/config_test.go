package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load("", false)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8940", cfg.Server.BaseURL)
	assert.Equal(t, 10000, cfg.Server.RequestTimeout)
	assert.Equal(t, "novel", cfg.Page.Type)
	assert.Empty(t, cfg.Session.Viewer, "no viewer means anonymous")
}

func TestMissingFileOnlyErrorsWhenExplicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.toml")

	_, err := Load(path, false)
	require.NoError(t, err)

	_, err = Load(path, true)
	require.Error(t, err)
}

func TestFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
base_url = "http://example.com:9000"

[session]
viewer = "ana"

[page]
type = "chapter"
item_id = 12

[debug]
log_level = "debug"
log_file = "margins.log"
`), 0o600))

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com:9000", cfg.Server.BaseURL)
	assert.Equal(t, 10000, cfg.Server.RequestTimeout, "unset keys keep their defaults")
	assert.Equal(t, "ana", cfg.Session.Viewer)
	assert.Equal(t, "chapter", cfg.Page.Type)
	assert.Equal(t, int64(12), cfg.Page.ItemID)
	assert.Equal(t, "debug", cfg.Debug.LogLevel)
}

func TestMalformedFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`[server`), 0o600))

	_, err := Load(path, true)
	require.Error(t, err)
}
