package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 8787, cfg.Port)
	assert.Equal(t, "https://api.openai.com", cfg.Upstream)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
host: 0.0.0.0
port: 9090
upstream: https://upstream.example.com
cache_dir: /var/lib/inferencegate/cache
read_timeout: 10s
write_timeout: 60s
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "https://upstream.example.com", cfg.Upstream)
	assert.Equal(t, "/var/lib/inferencegate/cache", cfg.CacheDir)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.WriteTimeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte("port: 8080\n"), 0o644))
	t.Setenv("INFERENCEGATE_PORT", "3000")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
}

func TestLoad_OpenAIAPIKeyEnvAlwaysWins(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("port: 8080\n"), 0o644))

	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env", cfg.APIKey)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Port, cfg.Port)
}

func TestPath_PrecedenceFlagThenEnvThenDefault(t *testing.T) {
	assert.Equal(t, "/explicit/path.yaml", Path("/explicit/path.yaml"))

	t.Setenv("INFERENCEGATE_CONFIG", "/from/env.yaml")
	assert.Equal(t, "/from/env.yaml", Path(""))
}
