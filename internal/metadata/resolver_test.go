package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/transfer-analytics/internal/apperr"
	"github.com/example/transfer-analytics/internal/config"
	"github.com/example/transfer-analytics/internal/mock"
	"github.com/example/transfer-analytics/internal/models"
)

type fakeToken struct {
	code     string
	name     string
	symbol   string
	decimals uint8
	decErr   error
	calls    int
}

func (f *fakeToken) GetCode(ctx context.Context, address string) (string, error) {
	f.calls++
	return f.code, nil
}

func (f *fakeToken) Name(ctx context.Context, token string) (string, error) {
	if f.name == "" {
		return "", errors.New("execution reverted")
	}
	return f.name, nil
}

func (f *fakeToken) Symbol(ctx context.Context, token string) (string, error) { return f.symbol, nil }

func (f *fakeToken) Decimals(ctx context.Context, token string) (uint8, error) {
	return f.decimals, f.decErr
}

func testConfig() config.Config {
	return config.Config{Chains: map[string]config.ChainConfig{
		config.Ethereum: {Name: config.Ethereum, RPCURL: "http://eth", TokenHex: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
		config.BSC:      {Name: config.BSC, RPCURL: "http://bsc", TokenHex: "0x55d398326f99059fF775485246999027B3197955", Decimals: 6},
	}}
}

func TestLookup(t *testing.T) {
	usdt := &fakeToken{code: "0x6080", name: "Tether USD", symbol: "USDT", decimals: 6}
	c := mock.NewCache()
	r := NewResolver(testConfig(), map[string]TokenReader{config.Ethereum: usdt}, c)

	info, err := r.Lookup(context.Background(), "ethereum")
	require.NoError(t, err)
	assert.Equal(t, models.ChainInfo{
		Chain:           config.Ethereum,
		TokenAddress:    "0xdAC17F958D2ee523a2206206994597C13D831ec7",
		Symbol:          "USDT",
		Name:            "Tether USD",
		Decimals:        6,
		OnChainDecimals: 6,
	}, info)

	_, err = r.Lookup(context.Background(), "ethereum")
	require.NoError(t, err)
	assert.Equal(t, 1, usdt.calls, "second lookup served from cache")
}

func TestLookupReportsOnChainDecimals(t *testing.T) {
	bsc := &fakeToken{code: "0x6080", symbol: "USDT", decimals: 18}
	r := NewResolver(testConfig(), map[string]TokenReader{config.BSC: bsc}, nil)

	info, err := r.Lookup(context.Background(), "bsc")
	require.NoError(t, err)
	assert.Equal(t, int32(6), info.Decimals)
	assert.Equal(t, int32(18), info.OnChainDecimals)
	assert.Empty(t, info.Name)
}

func TestLookupErrors(t *testing.T) {
	r := NewResolver(testConfig(), map[string]TokenReader{
		config.Ethereum: &fakeToken{code: "0x"},
		config.BSC:      &fakeToken{code: "0x6080", decErr: errors.New("timeout")},
	}, nil)

	_, err := r.Lookup(context.Background(), "solana")
	assert.True(t, apperr.IsConfiguration(err))

	_, err = r.Lookup(context.Background(), "ethereum")
	assert.True(t, apperr.IsUpstream(err))
	assert.ErrorIs(t, err, ErrNoContract)

	_, err = r.Lookup(context.Background(), "bsc")
	assert.True(t, apperr.IsUpstream(err))

	all := r.All(context.Background())
	require.Len(t, all, 2)
	assert.Equal(t, config.BSC, all[0].Chain)
	assert.Equal(t, int32(6), all[0].Decimals)
	assert.Equal(t, config.Ethereum, all[1].Chain)
}
