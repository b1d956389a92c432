// Package metadata reads ERC20 name, symbol and decimals for the served
// tokens and checks the on-chain decimals against the configured ones.
package metadata

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/example/transfer-analytics/internal/apperr"
	"github.com/example/transfer-analytics/internal/cache"
	"github.com/example/transfer-analytics/internal/config"
	"github.com/example/transfer-analytics/internal/models"
)

const (
	// CallTimeout bounds the eth_call round trips of one lookup.
	CallTimeout = 3 * time.Second
	// TTL is how long fetched metadata stays cached.
	TTL = 24 * time.Hour
)

var ErrNoContract = errors.New("no contract code at token address")

// TokenReader is the subset of eth.ERC20Client used here.
type TokenReader interface {
	GetCode(ctx context.Context, address string) (string, error)
	Name(ctx context.Context, token string) (string, error)
	Symbol(ctx context.Context, token string) (string, error)
	Decimals(ctx context.Context, token string) (uint8, error)
}

type Resolver struct {
	Config  config.Config
	Readers map[string]TokenReader
	Cache   cache.Cache // optional
}

func NewResolver(cfg config.Config, readers map[string]TokenReader, c cache.Cache) *Resolver {
	return &Resolver{Config: cfg, Readers: readers, Cache: c}
}

// Lookup returns the configured chain together with what its token contract
// reports. A decimals mismatch is logged, not returned as an error.
func (r *Resolver) Lookup(ctx context.Context, chain string) (models.ChainInfo, error) {
	ch, err := r.Config.Chain(chain)
	if err != nil {
		return models.ChainInfo{}, err
	}
	info := models.ChainInfo{Chain: ch.Name, TokenAddress: ch.Token().Hex(), Decimals: int32(ch.Decimals)}

	md, err := r.metadata(ctx, ch)
	if err != nil {
		return info, err
	}
	info.Name, info.Symbol, info.OnChainDecimals = md.Name, md.Symbol, md.Decimals
	if md.Decimals != info.Decimals {
		log.Warn().Str("chain", ch.Name).Str("token", info.TokenAddress).
			Int32("configured", info.Decimals).Int32("on_chain", md.Decimals).
			Msg("token decimals differ from configuration")
	}
	return info, nil
}

// All looks up every served chain. Chains whose lookup fails are still
// listed with their configured values.
func (r *Resolver) All(ctx context.Context) []models.ChainInfo {
	names := r.Config.ChainNames()
	out := make([]models.ChainInfo, 0, len(names))
	for _, name := range names {
		info, err := r.Lookup(ctx, name)
		if err != nil {
			log.Warn().Err(err).Str("chain", name).Msg("token metadata lookup failed")
		}
		out = append(out, info)
	}
	return out
}

func (r *Resolver) metadata(ctx context.Context, ch config.ChainConfig) (models.TokenMetadata, error) {
	if r.Cache != nil {
		md, ok, err := r.Cache.GetTokenMetadata(ctx, ch.Name)
		if err != nil {
			log.Warn().Err(err).Str("chain", ch.Name).Msg("metadata cache read failed")
		} else if ok {
			return md, nil
		}
	}

	reader, ok := r.Readers[ch.Name]
	if !ok {
		return models.TokenMetadata{}, apperr.Config("chain", "no token reader for %q", ch.Name)
	}
	md, err := fetchOne(ctx, reader, ch.Token().Hex())
	if err != nil {
		return models.TokenMetadata{}, err
	}

	if r.Cache != nil {
		if err := r.Cache.SetTokenMetadata(ctx, ch.Name, md, TTL); err != nil {
			log.Warn().Err(err).Str("chain", ch.Name).Msg("metadata cache write failed")
		}
	}
	return md, nil
}

// fetchOne requires decimals; name and symbol are best effort.
func fetchOne(ctx context.Context, reader TokenReader, token string) (models.TokenMetadata, error) {
	cctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	code, err := reader.GetCode(cctx, token)
	if err != nil {
		return models.TokenMetadata{}, apperr.Upstream("eth_getCode", err)
	}
	if code == "0x" || code == "0x0" || code == "" {
		return models.TokenMetadata{}, apperr.Upstream("eth_getCode", ErrNoContract)
	}
	dec, err := reader.Decimals(cctx, token)
	if err != nil {
		return models.TokenMetadata{}, apperr.Upstream("decimals()", err)
	}
	name, err := reader.Name(cctx, token)
	if err != nil {
		name = ""
	}
	symbol, err := reader.Symbol(cctx, token)
	if err != nil {
		symbol = ""
	}
	return models.TokenMetadata{TokenAddress: token, Name: name, Symbol: symbol, Decimals: int32(dec)}, nil
}
