package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration loaded from TOML.
type Config struct {
	RPCAddress        string `toml:"RPCAddress"`
	DataDir           string `toml:"DataDir"`
	NetworkName       string `toml:"NetworkName"`
	ResolverAuthority string `toml:"ResolverAuthority"`
	FeeBps            uint32 `toml:"FeeBps"`
	FeeDestination    string `toml:"FeeDestination"`
	TokenDecimals     uint8  `toml:"TokenDecimals"`
}

const (
	defaultRPCAddress  = "127.0.0.1:8545"
	defaultDataDir     = "./trustpay-data"
	defaultNetworkName = "trustpay-local"
	defaultFeeBps      = 5
	defaultDecimals    = 6
)

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ResolverAuthority) == "" {
		return fmt.Errorf("config: ResolverAuthority is required")
	}
	if strings.TrimSpace(c.FeeDestination) == "" {
		return fmt.Errorf("config: FeeDestination is required")
	}
	if c.FeeBps > 10_000 {
		return fmt.Errorf("config: FeeBps must be at most 10000")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = defaultRPCAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = defaultNetworkName
	}
	if cfg.FeeBps == 0 {
		cfg.FeeBps = defaultFeeBps
	}
	if cfg.TokenDecimals == 0 {
		cfg.TokenDecimals = defaultDecimals
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
