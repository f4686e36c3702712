package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenConfig(t *testing.T) {
	raw := map[string]any{
		"solana": map[string]any{
			"rpc-url":    "http://localhost:8899",
			"commitment": "finalized",
		},
		"pricer": map[string]any{
			"poll_interval":   "10s",
			"pools":           []any{"RAY-USDC", " ", "SOL-USDC"},
			"max concurrency": 2,
		},
		"empty": nil,
	}
	flat, err := flattenConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"SOLANA_RPC_URL":         "http://localhost:8899",
		"SOLANA_COMMITMENT":      "finalized",
		"PRICER_POLL_INTERVAL":   "10s",
		"PRICER_POOLS":           "RAY-USDC,SOL-USDC",
		"PRICER_MAX_CONCURRENCY": "2",
	}, flat)

	_, err = flattenConfig(map[string]any{"bad": []any{map[string]any{"x": 1}}})
	require.Error(t, err)
}

func TestNormalizeKeySegment(t *testing.T) {
	assert.Equal(t, "API_SERVER", normalizeKeySegment("api-server"))
	assert.Equal(t, "WS_PUSH_INTERVAL", normalizeKeySegment(" ws.push  interval_ "))
	assert.Equal(t, "", normalizeKeySegment("--"))
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_DURATION", "250ms")
	t.Setenv("TEST_BAD_DURATION", "-1s")
	t.Setenv("TEST_INT", "7")
	t.Setenv("TEST_BOOL", "false")
	t.Setenv("TEST_COMMITMENT", "Finalized")
	t.Setenv("TEST_CSV", " a, ,b ")

	d, err := envDuration("TEST_DURATION", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = envDuration("TEST_BAD_DURATION", time.Second)
	require.Error(t, err)

	d, err = envDuration("TEST_UNSET_DURATION", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	n, err := envInt("TEST_INT", 1)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	b, err := envBool("TEST_BOOL", true)
	require.NoError(t, err)
	assert.False(t, b)

	c, err := envCommitment("TEST_COMMITMENT", rpc.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, rpc.CommitmentFinalized, c)

	assert.Equal(t, []string{"a", "b"}, parseCSVEnv(valueForKey("TEST_CSV"), nil))
	assert.Equal(t, []string{"*"}, parseCSVEnv(" , ", []string{"*"}))
}

func TestLoadPricerConfig(t *testing.T) {
	t.Setenv("SOLANA_RPC_URL", "http://127.0.0.1:8899")
	t.Setenv("PRICER_POOLS", "RAY-USDC,USDT-USDC")
	t.Setenv("PRICER_MAX_CONCURRENCY", "2")
	t.Setenv("SERUM_PROGRAM_ID", "DESVgJVGajEgKGXhb6XmqDHGz3VjdgP7rEVESBgxmroY")

	cfg, err := LoadPricerConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8899", cfg.RPC.URL)
	assert.Equal(t, rpc.CommitmentConfirmed, cfg.RPC.Commitment)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 15*time.Second, cfg.RPC.RequestTimeout)
	assert.Equal(t, 2, cfg.MaxConcurrency)
	assert.Equal(t, []string{"RAY-USDC", "USDT-USDC"}, cfg.Pools)
	assert.Equal(t, "DESVgJVGajEgKGXhb6XmqDHGz3VjdgP7rEVESBgxmroY", cfg.Registry.SerumProgramID.String())
	assert.Equal(t, filepath.Join(".docker", "indexer", "indexer.log"), cfg.Log.FilePath)

	t.Setenv("PRICER_POOLS", "BTC-USDC")
	_, err = LoadPricerConfig()
	require.ErrorIs(t, err, ErrInvalidRegistry)
}
