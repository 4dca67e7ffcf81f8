package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
session:
  account: "0x1111111111111111111111111111111111111111"
parent_chain:
  rpc_url: "http://localhost:8545"
  chain_id: 1
child_chain:
  rpc_url: "http://localhost:8547"
  chain_id: 42161
eras:
  parent_boundary: 15447158
  child_boundary: 22207817
  current:
    parent_inbox: "0x4Dbd4fc535Ac27206064B68FfCf827b0A60BAB3f"
    parent_gateways: ["0xa3A7B6F88361F48403514059F1F16C8E78d60EeC"]
    child_gateways: ["0x09e9222E96E7B4AE2a407B98d48e330053351EEe"]
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StorageDriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 10*time.Second, cfg.Polling.Interval)
	assert.Equal(t, int64(8), cfg.Polling.MaxConcurrent)
	assert.Equal(t, uint64(5000), cfg.Backfill.PageSize)
	assert.Equal(t, uint64(3), cfg.Backfill.MaxRetries)
	assert.Equal(t, 1024, cfg.ChildChain.BlockCacheSize)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, uint64(15447158), cfg.Eras.ParentBoundary)
}

func TestParse_FileOverridesDefaults(t *testing.T) {
	data := minimalYAML + `
polling:
  interval: 3s
  max_concurrent: 2
storage:
  driver: memory
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Polling.Interval)
	assert.Equal(t, int64(2), cfg.Polling.MaxConcurrent)
	assert.Equal(t, StorageDriverMemory, cfg.Storage.Driver)
	// values not present in the file keep their defaults
	assert.Equal(t, 5*time.Minute, cfg.Polling.MaxBackoff)
}

func TestParse_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("TRACKER_POLLING_INTERVAL", "7s")
	t.Setenv("TRACKER_PARENT_CHAIN_RPC_URL", "http://parent:8545")
	t.Setenv("TRACKER_DATABASE_PASSWORD", "secret")

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 7*time.Second, cfg.Polling.Interval)
	assert.Equal(t, "http://parent:8545", cfg.ParentChain.RPCURL)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, "http://localhost:8547", cfg.ChildChain.RPCURL)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing account",
			yaml: `
parent_chain: {rpc_url: "http://a", chain_id: 1}
child_chain: {rpc_url: "http://b", chain_id: 2}
eras: {current: {parent_inbox: "0x4Dbd4fc535Ac27206064B68FfCf827b0A60BAB3f"}}
`,
		},
		{
			name: "bad storage driver",
			yaml: minimalYAML + "storage:\n  driver: redis\n",
		},
		{
			name: "indexer enabled without url",
			yaml: minimalYAML + "indexer:\n  enabled: true\n",
		},
		{
			name: "current era without contracts",
			yaml: `
session: {account: "0x1111111111111111111111111111111111111111"}
parent_chain: {rpc_url: "http://a", chain_id: 1}
child_chain: {rpc_url: "http://b", chain_id: 2}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", cfg.Session.Account)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
