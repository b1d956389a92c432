// Package pipeline turns a chain and a timestamp window into TransferStats:
// resolve the window to blocks, fetch the Transfer events, then build the
// volume chart and the sender ranking from the same event set.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/example/transfer-analytics/internal/aggregator"
	"github.com/example/transfer-analytics/internal/amount"
	"github.com/example/transfer-analytics/internal/apperr"
	"github.com/example/transfer-analytics/internal/blocks"
	"github.com/example/transfer-analytics/internal/cache"
	"github.com/example/transfer-analytics/internal/config"
	"github.com/example/transfer-analytics/internal/eth"
	"github.com/example/transfer-analytics/internal/models"
	"github.com/example/transfer-analytics/internal/retriever"
	"github.com/example/transfer-analytics/internal/store"
)

// Source is the chain capability the pipeline needs; eth.Client implements it.
type Source interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, n uint64) (uint64, error)
	GetLogs(ctx context.Context, q eth.FilterQuery) ([]eth.Log, error)
}

type Option func(*Pipeline)

// WithCache enables the response cache.
func WithCache(c cache.Cache) Option { return func(p *Pipeline) { p.cache = c } }

// WithBlockIndex puts a durable block timestamp index in front of every chain.
func WithBlockIndex(idx store.BlockIndex) Option { return func(p *Pipeline) { p.index = idx } }

// WithSource replaces the JSON-RPC client of one chain.
func WithSource(chain string, src Source) Option {
	return func(p *Pipeline) { p.sources[chain] = src }
}

type chainRunner struct {
	cfg       config.ChainConfig
	resolver  *blocks.Resolver
	retriever *retriever.Retriever
	erc20     *eth.ERC20Client // nil for injected sources
}

type Pipeline struct {
	cfg     config.Config
	cache   cache.Cache
	index   store.BlockIndex
	sources map[string]Source
	chains  map[string]*chainRunner
}

// New wires one client, resolver and retriever per configured chain.
func New(cfg config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg, sources: map[string]Source{}, chains: map[string]*chainRunner{}}
	for _, o := range opts {
		o(p)
	}
	for _, name := range cfg.ChainNames() {
		ch := cfg.Chains[name]
		r := &chainRunner{cfg: ch}
		src, ok := p.sources[name]
		if !ok {
			client := eth.NewClient(ch.RPCURL, cfg.RPCTimeout)
			r.erc20 = eth.NewERC20Client(client)
			src = client
		}
		var headers blocks.HeaderSource = src
		if p.index != nil {
			headers = store.NewCachedHeaders(name, src, p.index, cfg.ReorgDepth)
		}
		r.resolver = blocks.NewResolver(name, headers)
		r.retriever = retriever.New(name, ch.Token(), src, headers, retriever.Options{
			BatchSize:   uint64(cfg.BatchSize),
			Concurrency: cfg.Concurrency,
		})
		p.chains[name] = r
	}
	return p
}

// ERC20Clients returns the token readers of chains using the built-in client.
func (p *Pipeline) ERC20Clients() map[string]*eth.ERC20Client {
	out := make(map[string]*eth.ERC20Client, len(p.chains))
	for name, r := range p.chains {
		if r.erc20 != nil {
			out[name] = r.erc20
		}
	}
	return out
}

// Run computes the stats of chain over the configured window.
func (p *Pipeline) Run(ctx context.Context, chain string) (*models.TransferStats, error) {
	return p.RunWindow(ctx, chain, p.cfg.Window)
}

// RunWindow computes the stats of chain over w. Results whose block range
// stops short of the head are cached when a cache is configured.
func (p *Pipeline) RunWindow(ctx context.Context, chain string, w models.Window) (*models.TransferStats, error) {
	ch, err := p.cfg.Chain(chain)
	if err != nil {
		return nil, err
	}
	r, ok := p.chains[ch.Name]
	if !ok {
		return nil, apperr.Config("chain", "chain %q is not wired", chain)
	}
	if w.Start == 0 && w.End == 0 {
		return nil, apperr.Config("window", "window is not set")
	}
	if err := config.ValidateWindow(w); err != nil {
		return nil, err
	}

	if p.cache != nil {
		stats, ok, err := p.cache.GetStats(ctx, ch.Name, w)
		if err != nil {
			log.Warn().Err(err).Str("chain", ch.Name).Msg("response cache read failed")
		} else if ok {
			log.Debug().Str("chain", ch.Name).Uint64("start", w.Start).Uint64("end", w.End).Msg("response cache hit")
			return stats, nil
		}
	}

	started := time.Now()
	br, err := r.resolver.ResolveWindow(ctx, w)
	if err != nil {
		return nil, err
	}
	events, err := r.retriever.Fetch(ctx, br.From, br.To)
	if err != nil {
		return nil, err
	}
	stats, err := Summarize(ctx, events, ch.Decimals)
	if err != nil {
		return nil, err
	}

	if p.cache != nil && !br.ReachesHead() {
		if err := p.cache.SetStats(ctx, ch.Name, w, stats, p.cfg.CacheTTL); err != nil {
			log.Warn().Err(err).Str("chain", ch.Name).Msg("response cache write failed")
		}
	}
	log.Info().Str("chain", ch.Name).Uint64("from_block", br.From).Uint64("to_block", br.To).
		Int("events", len(events)).Int("buckets", len(stats.VolumeChart)).Int("senders", len(stats.TopSenders)).
		Str("total_volume", stats.TotalVolume).Dur("latency", time.Since(started)).Msg("computed transfer stats")
	return stats, nil
}

// Summarize builds TransferStats from an event set. The chart and the
// ranking are computed concurrently; the total is summed on its own.
func Summarize(ctx context.Context, events []models.TransferEvent, decimals uint) (*models.TransferStats, error) {
	stats := &models.TransferStats{}
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats.VolumeChart = aggregator.AggregateVolume(events, aggregator.BucketWidth, decimals)
		return nil
	})
	g.Go(func() error {
		stats.TopSenders = aggregator.RankSenders(events, decimals)
		return nil
	})
	stats.TotalVolume = amount.Format(aggregator.TotalVolume(events), decimals)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}
