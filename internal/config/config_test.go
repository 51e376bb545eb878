package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsearch/vaultsearch/internal/errors"
)

func writeConfig(t *testing.T, dataDir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "config.yaml"), []byte(content), 0o644))
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	vault := t.TempDir()
	t.Setenv("VAULT_SEARCH_PATH", vault)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, vault, cfg.VaultPath)
	assert.Equal(t, 10, cfg.Search.TopN)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 60*time.Second, cfg.Daemon.RefreshInterval)
	assert.Contains(t, cfg.ExcludeDirs, ".obsidian")
	assert.Contains(t, cfg.ExcludeDirs, ".git")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	vault := t.TempDir()
	dataDir := t.TempDir()
	writeConfig(t, dataDir, "vault_path: "+vault+"\nsearch:\n  top_n: 25\n")
	t.Setenv("VAULT_SEARCH_PATH", "")

	cfg, err := Load(dataDir)
	require.NoError(t, err)

	assert.Equal(t, vault, cfg.VaultPath)
	assert.Equal(t, 25, cfg.Search.TopN)
	// Untouched fields keep defaults.
	assert.Equal(t, 0.40, cfg.Search.LexicalWeight)
}

func TestEnvOverridesFile(t *testing.T) {
	fileVault := t.TempDir()
	envVault := t.TempDir()
	dataDir := t.TempDir()
	writeConfig(t, dataDir, "vault_path: "+fileVault+"\n")
	t.Setenv("VAULT_SEARCH_PATH", envVault)

	cfg, err := Load(dataDir)
	require.NoError(t, err)

	assert.Equal(t, envVault, cfg.VaultPath)
}

func TestLoadMissingVaultPath(t *testing.T) {
	t.Setenv("VAULT_SEARCH_PATH", "")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestLoadVaultPathNotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	t.Setenv("VAULT_SEARCH_PATH", file)

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestLoadRejectsBadWeights(t *testing.T) {
	vault := t.TempDir()
	dataDir := t.TempDir()
	writeConfig(t, dataDir, "vault_path: "+vault+"\nsearch:\n  lexical_weight: 0.9\n  semantic_weight: 0.9\n")
	t.Setenv("VAULT_SEARCH_PATH", "")

	_, err := Load(dataDir)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dataDir := t.TempDir()
	writeConfig(t, dataDir, "vault_path: [unterminated\n")

	_, err := Load(dataDir)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestSaveRoundTrip(t *testing.T) {
	vault := t.TempDir()
	dataDir := t.TempDir()
	t.Setenv("VAULT_SEARCH_PATH", vault)

	cfg, err := Load(dataDir)
	require.NoError(t, err)
	cfg.Search.TopN = 7
	require.NoError(t, cfg.Save())

	t.Setenv("VAULT_SEARCH_PATH", "")
	reloaded, err := Load(dataDir)
	require.NoError(t, err)
	assert.Equal(t, vault, reloaded.VaultPath)
	assert.Equal(t, 7, reloaded.Search.TopN)
}

func TestDefaultDataDirPrefersEnv(t *testing.T) {
	t.Setenv("VAULT_SEARCH_DATA_DIR", "/custom/data")
	assert.Equal(t, "/custom/data", DefaultDataDir())

	t.Setenv("VAULT_SEARCH_DATA_DIR", "")
	t.Setenv("XDG_DATA_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "vault-search"), DefaultDataDir())
}

func TestPathHelpers(t *testing.T) {
	cfg := New()
	cfg.SetDataDir("/data")

	assert.Equal(t, filepath.Join("/data", "index"), cfg.IndexDir())
	assert.Equal(t, filepath.Join("/data", "daemon.sock"), cfg.SocketPath())
	assert.Equal(t, filepath.Join("/data", "daemon.pid"), cfg.PIDPath())
	assert.Equal(t, filepath.Join("/data", "daemon.lock"), cfg.LockPath())
}
