package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the daemon's file configuration. Chain identity values feed the
// ledger's one-time initialization; the rest wires the serving surfaces.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Environment   string `toml:"Environment"`

	// ChainID is this deployment's bridge-level chain identifier.
	ChainID uint16 `toml:"ChainID"`
	// ChainSequenceSeed distinguishes identifier derivation across
	// re-deployments of the same chain id.
	ChainSequenceSeed uint64 `toml:"ChainSequenceSeed"`
	// Owner and FeeCollector are 32-byte hex wallet identities.
	Owner        string `toml:"Owner"`
	FeeCollector string `toml:"FeeCollector"`
	NativeDenom  string `toml:"NativeDenom"`
}

const defaultConfig = `ListenAddress = "127.0.0.1:8545"
DataDir = "./chainbills-data"
Environment = "local"
ChainID = 1
ChainSequenceSeed = 1
Owner = ""
FeeCollector = ""
NativeDenom = "CBILL"
`

// Load reads the configuration at path, creating a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0o600); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if _, err := toml.Decode(defaultConfig, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = "127.0.0.1:8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./chainbills-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
}

func validate(cfg *Config) error {
	if cfg.ChainID == 0 {
		return fmt.Errorf("ChainID must be non-zero")
	}
	if strings.TrimSpace(cfg.NativeDenom) == "" {
		return fmt.Errorf("NativeDenom must be set")
	}
	return nil
}
