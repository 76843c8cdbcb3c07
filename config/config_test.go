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
	require.Equal(t, defaultRPCAddress, cfg.RPCAddress)
	require.Equal(t, defaultNetworkName, cfg.NetworkName)
	require.Equal(t, uint32(defaultFeeBps), cfg.FeeBps)
	require.FileExists(t, path)

	// A default config has no authority and must fail validation.
	require.Error(t, cfg.Validate())
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `RPCAddress = "0.0.0.0:9000"
DataDir = "/var/lib/trustpay"
NetworkName = "trustpay-test"
ResolverAuthority = "tp1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq492u8l"
FeeBps = 25
FeeDestination = "tp1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq492u8l"
TokenDecimals = 9
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPCAddress)
	require.Equal(t, "trustpay-test", cfg.NetworkName)
	require.Equal(t, uint32(25), cfg.FeeBps)
	require.Equal(t, uint8(9), cfg.TokenDecimals)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := &Config{FeeBps: 5}
	require.Error(t, cfg.Validate())

	cfg.ResolverAuthority = "tp1example"
	require.Error(t, cfg.Validate())

	cfg.FeeDestination = "tp1example"
	require.NoError(t, cfg.Validate())

	cfg.FeeBps = 10_001
	require.Error(t, cfg.Validate())
}
