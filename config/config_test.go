package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zfdang/enclave-lottery-app-sub000/testing/assert"
	"github.com/zfdang/enclave-lottery-app-sub000/testing/require"
)

const validConf = `{
  "blockchain": {
    "rpc_url": "http://localhost:8545",
    "chain_id": 31337,
    "contract_address": "0x5FbDB2315678afecb367f032d93F642f64180aa3",
    "operator_address": "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
  },
  "server": {"port": 9000}
}`

func writeConf(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lottery.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	cfg, err := Load(writeConf(t, validConf))
	require.NoError(t, err)

	// File values win over defaults.
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, int64(31337), cfg.Blockchain.ChainID)

	// Untouched keys keep their documented defaults.
	assert.Equal(t, 1.15, cfg.Blockchain.GasMultiplier)
	assert.Equal(t, uint64(180), cfg.Operator.TxTimeoutSeconds)
	assert.Equal(t, uint64(10), cfg.EventManager.ContractConfigIntervalSec)
	assert.Equal(t, uint64(2), cfg.EventManager.RoundAndParticipantsIntervalSec)
	assert.Equal(t, uint64(500), cfg.EventManager.StartBlockOffset)
	assert.Equal(t, 1000, cfg.EventManager.LiveFeedMaxEntries)
	assert.Equal(t, 100, cfg.EventManager.RoundHistoryMax)
	assert.Equal(t, true, cfg.Operator.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BLOCKCHAIN_GAS_PRICE", "25")
	t.Setenv("SERVER_PORT", "7777")
	t.Setenv("APP_TX_TIMEOUT_SECONDS", "60")
	cfg, err := Load(writeConf(t, validConf))
	require.NoError(t, err)
	assert.Equal(t, uint64(25), cfg.Blockchain.GasPrice)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, uint64(60), cfg.Operator.TxTimeoutSeconds)
}

func TestLoad_EnvOverrideBadValue(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	_, err := Load(writeConf(t, validConf))
	assert.ErrorContains(t, "SERVER_PORT", err)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.conf"))
	assert.ErrorContains(t, "could not read config file", err)
}

func TestLoad_InvalidAddressRejected(t *testing.T) {
	conf := `{"blockchain": {"rpc_url": "http://localhost:8545", "chain_id": 1, "contract_address": "bogus"}}`
	_, err := Load(writeConf(t, conf))
	assert.ErrorContains(t, "invalid configuration", err)
}

func TestOperatorAddr(t *testing.T) {
	cfg, err := Load(writeConf(t, validConf))
	require.NoError(t, err)
	addr := cfg.OperatorAddr()
	require.NotNil(t, addr)
	assert.Equal(t, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8", addrLower(addr.Hex()))

	cfg.Blockchain.OperatorAddress = ""
	if cfg.OperatorAddr() != nil {
		t.Fatal("expected nil operator address when unset")
	}
}

func addrLower(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'F' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
