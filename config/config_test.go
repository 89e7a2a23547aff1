package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8545", cfg.ListenAddress)
	require.Equal(t, uint16(1), cfg.ChainID)
	require.Equal(t, "CBILL", cfg.NativeDenom)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config file should be written")
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `ListenAddress = "0.0.0.0:9000"
ChainID = 9001
ChainSequenceSeed = 2
NativeDenom = "cbill"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.ListenAddress)
	require.Equal(t, uint16(9001), cfg.ChainID)
	require.Equal(t, uint64(2), cfg.ChainSequenceSeed)
	// Omitted fields fall back to defaults.
	require.Equal(t, "./chainbills-data", cfg.DataDir)
	require.Equal(t, "local", cfg.Environment)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`ChainID = 0`), 0o600))

	_, err := Load(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("ChainID = 5\nNativeDenom = \"  \"\n"), 0o600))
	_, err = Load(path)
	require.Error(t, err)
}
