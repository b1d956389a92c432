package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/transfer-analytics/internal/apperr"
	"github.com/example/transfer-analytics/internal/config"
	"github.com/example/transfer-analytics/internal/mock"
	"github.com/example/transfer-analytics/internal/models"
	"github.com/example/transfer-analytics/internal/pipeline"
)

func testChain() *mock.Chain {
	chain := mock.LinearChain(50, 1_700_000_000, 600)
	sender := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	chain.Logs = []mock.LogAt{
		mock.TransferLog(2, sender, sender, 1_250_000),
		mock.TransferLog(5, sender, sender, 750_000),
	}
	return chain
}

func TestRootCommand(t *testing.T) {
	t.Setenv("ETHEREUM_RPC_URL", "http://unused")
	t.Setenv("BSC_RPC_URL", "")
	t.Setenv("START_TIMESTAMP", "1")
	t.Setenv("END_TIMESTAMP", "2")

	var out bytes.Buffer
	cmd := newRootCmd(&out, pipeline.WithSource(config.Ethereum, testChain()))
	cmd.SetArgs([]string{"--chain", "ethereum", "--start", "1700000000", "--end", "1700006000"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	var stats models.TransferStats
	require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
	assert.Equal(t, "2.000000", stats.TotalVolume)
	require.Len(t, stats.TopSenders, 1)
	assert.Equal(t, float64(100), stats.TopSenders[0].Percentage)
	assert.Equal(t, []models.VolumePoint{
		{Timestamp: 1_700_001_000, Volume: "1.250000"},
		{Timestamp: 1_700_002_800, Volume: "0.750000"},
	}, stats.VolumeChart)
}

func TestRootCommandRejectsBadWindow(t *testing.T) {
	t.Setenv("ETHEREUM_RPC_URL", "http://unused")
	t.Setenv("START_TIMESTAMP", "")
	t.Setenv("END_TIMESTAMP", "")

	cmd := newRootCmd(&bytes.Buffer{}, pipeline.WithSource(config.Ethereum, testChain()))
	cmd.SetArgs([]string{"--start", "1700006000", "--end", "1700000000"})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	assert.True(t, apperr.IsConfiguration(err))
}

func TestRunUnknownChain(t *testing.T) {
	cfg := config.Config{
		Chains:      map[string]config.ChainConfig{config.Ethereum: {Name: config.Ethereum, RPCURL: "http://unused", TokenHex: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6}},
		Window:      models.Window{Start: 1, End: 2},
		BatchSize:   10,
		Concurrency: 1,
	}
	err := run(context.Background(), cfg, flags{chain: "bsc"}, &bytes.Buffer{}, pipeline.WithSource(config.Ethereum, testChain()))
	assert.True(t, apperr.IsConfiguration(err))
}
